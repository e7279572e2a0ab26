package editor

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-form-builder/internal/domain"
)

func sampleTree() *Tree {
	return BuildTree(&domain.FormSnapshot{
		Form: domain.Form{ID: "f"},
		Groups: []domain.Group{
			{ID: "g1", FormID: "f", OrderIndex: 0},
			{ID: "g2", FormID: "f", OrderIndex: 1},
		},
		Items: []domain.Item{
			{ID: "x", GroupID: "g1", OrderIndex: 0},
			{ID: "y", GroupID: "g1", OrderIndex: 1},
			{ID: "z", GroupID: "g1", OrderIndex: 2},
		},
		Options: []domain.Option{
			{ID: "o1", ItemID: "x", OrderIndex: 0},
		},
	})
}

func TestBuildTree_SortsAndMarksGaps(t *testing.T) {
	tr := BuildTree(&domain.FormSnapshot{
		Form: domain.Form{ID: "f"},
		Groups: []domain.Group{
			{ID: "g", FormID: "f", OrderIndex: 0},
			{ID: "other", FormID: "f2", OrderIndex: 0},
		},
		Items: []domain.Item{
			{ID: "b", GroupID: "g", OrderIndex: 5},
			{ID: "a", GroupID: "g", OrderIndex: 2},
			{ID: "c", GroupID: "g", OrderIndex: 5},
		},
	})
	require.Len(t, tr.Groups, 1, "groups of other forms are ignored")
	assert.Equal(t, []string{"a", "b", "c"}, itemIDs(tr.Groups[0]))
	requireDense(t, tr)
	assert.True(t, tr.Stale("g"))
	assert.False(t, tr.Stale("f"))
}

func TestInsertChild_ClampsAndRenumbers(t *testing.T) {
	tests := []struct {
		name string
		pos  int
		want []string
	}{
		{"head", 0, []string{"n", "x", "y", "z"}},
		{"middle", 2, []string{"x", "y", "n", "z"}},
		{"negative clamps to head", -4, []string{"n", "x", "y", "z"}},
		{"past end appends", 99, []string{"x", "y", "z", "n"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := sampleTree()
			sibs, err := tr.InsertChild("g1", tc.pos, &ItemNode{Item: domain.Item{ID: "n"}})
			require.NoError(t, err)
			assert.Equal(t, tc.want, itemIDs(tr.Group("g1")))
			for i, s := range sibs {
				assert.Equal(t, i, s.OrderIndex)
				assert.Equal(t, tc.want[i], s.ID)
			}
			n, _ := tr.Item("n")
			assert.Equal(t, "g1", n.GroupID)
		})
	}
}

func TestInsertChild_ParentErrors(t *testing.T) {
	tr := sampleTree()

	_, err := tr.InsertChild("g1", 0, &GroupNode{Group: domain.Group{ID: "g3"}})
	assert.ErrorIs(t, err, ErrKindMismatch)

	_, err = tr.InsertChild("x", 0, &ItemNode{Item: domain.Item{ID: "n"}})
	assert.ErrorIs(t, err, ErrKindMismatch)

	_, err = tr.InsertChild("missing", 0, &OptionNode{DraftKey: "d"})
	var nf NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "item", nf.Kind)
}

func TestRemoveChild(t *testing.T) {
	tr := sampleTree()
	sibs, err := tr.RemoveChild("g1", "y")
	require.NoError(t, err)
	assert.Equal(t, []Sibling{{ID: "x", OrderIndex: 0}, {ID: "z", OrderIndex: 1}}, sibs)
	assert.True(t, tr.Stale("g1"))

	_, err = tr.RemoveChild("g1", "y")
	assert.True(t, IsNotFound(err))
}

func TestMoveChild(t *testing.T) {
	tr := sampleTree()
	sibs, err := tr.MoveChild("g1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []Sibling{{"z", 0}, {"x", 1}, {"y", 2}}, sibs)

	sibs, err = tr.MoveChild("g1", 0, 99)
	require.NoError(t, err)
	assert.Equal(t, []Sibling{{"x", 0}, {"y", 1}, {"z", 2}}, sibs)
}

func TestClone_IsDeep(t *testing.T) {
	tr := sampleTree()
	c := tr.Clone()
	c.Group("g1").Items[0].Question = "changed"
	c.Groups[0].Items[0].Options[0].Label = "changed"
	_, _ = c.MoveChild("g1", 0, 2)

	x, _ := tr.Item("x")
	assert.Empty(t, x.Question)
	assert.Empty(t, x.Options[0].Label)
	assert.Equal(t, []string{"x", "y", "z"}, itemIDs(tr.Group("g1")))
}

func TestDensity_RandomOperations(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	tr := sampleTree()
	containers := []string{"g1", "g2"}

	for i := 0; i < 500; i++ {
		gid := containers[r.Intn(len(containers))]
		g := tr.Group(gid)
		switch op := r.Intn(3); {
		case op == 0 || len(g.Items) == 0:
			_, err := tr.InsertChild(gid, r.Intn(len(g.Items)+3)-1, &ItemNode{Item: domain.Item{ID: fmt.Sprintf("n%d", i)}})
			require.NoError(t, err)
		case op == 1:
			victim := g.Items[r.Intn(len(g.Items))].ID
			_, err := tr.RemoveChild(gid, victim)
			require.NoError(t, err)
		default:
			_, err := tr.MoveChild(gid, r.Intn(len(g.Items)), r.Intn(len(g.Items)+2)-1)
			require.NoError(t, err)
		}
		requireDense(t, tr)
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Yes":             "yes",
		"Não se aplica":   "nao_se_aplica",
		"  Hello, World ": "hello_world",
		"A/B  test-2":     "a_b_test_2",
		"!!!":             "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}
