// Package domain defines the persistence models for forms and their
// Group → Item → Option tree, plus the feedback templates attached to
// options. These types are mapped with GORM and form the core data layer
// of the form builder.
package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FormStatus is the lifecycle state of a form.
type FormStatus string

const (
	FormStatusDraft    FormStatus = "draft"
	FormStatusActive   FormStatus = "active"
	FormStatusArchived FormStatus = "archived"
)

// Valid reports whether s is one of the known lifecycle states.
func (s FormStatus) Valid() bool {
	switch s {
	case FormStatusDraft, FormStatusActive, FormStatusArchived:
		return true
	}
	return false
}

// AnswerType tags how an item is answered.
type AnswerType string

const (
	// AnswerYesNo is the built-in type with the fixed Yes/No option pair.
	AnswerYesNo AnswerType = "yes_no"
	// AnswerToggle is a custom option set rendered as toggle buttons.
	AnswerToggle AnswerType = "custom_toggle"
	// AnswerDropdown is a custom option set rendered as a dropdown.
	AnswerDropdown AnswerType = "custom_dropdown"
)

// Valid reports whether t is one of the known answer types.
func (t AnswerType) Valid() bool {
	switch t {
	case AnswerYesNo, AnswerToggle, AnswerDropdown:
		return true
	}
	return false
}

// Form is the root of a questionnaire tree. It owns an ordered sequence of
// groups.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Title / Description: operator-facing metadata.
//   - Status: draft, active or archived.
//   - CreatedBy: actor that created the form; indexed for listing.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Form struct {
	ID          string     `json:"id"          gorm:"type:char(36);primaryKey"`
	Title       string     `json:"title"       gorm:"type:varchar(255);not null;default:'Untitled form'"`
	Description string     `json:"description" gorm:"type:text;not null;default:''"`
	Status      FormStatus `json:"status"      gorm:"type:varchar(16);not null;default:'draft';index;check:status IN ('draft','active','archived')"`
	CreatedBy   string     `json:"created_by"  gorm:"type:varchar(64);not null;index:idx_form_creator"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Form.
func (Form) TableName() string { return "forms" }

// BeforeCreate assigns a UUID when the caller did not supply one.
func (f *Form) BeforeCreate(*gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// Group is a section of a form. OrderIndex is dense and zero-based within
// the parent form.
type Group struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	FormID     string    `json:"form_id"     gorm:"type:char(36);not null;index:idx_group_form_order,priority:1"`
	Title      string    `json:"title"       gorm:"type:varchar(255);not null;default:''"`
	OrderIndex int       `json:"order_index" gorm:"not null;default:0;index:idx_group_form_order,priority:2"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Form is the owning form. Groups are cascade-deleted with it.
	Form Form `json:"-" gorm:"foreignKey:FormID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Group.
func (Group) TableName() string { return "form_groups" }

// BeforeCreate assigns a UUID when the caller did not supply one.
func (g *Group) BeforeCreate(*gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

// Item is a single question within a group.
type Item struct {
	ID         string     `json:"id"          gorm:"type:char(36);primaryKey"`
	GroupID    string     `json:"group_id"    gorm:"type:char(36);not null;index:idx_item_group_order,priority:1"`
	Question   string     `json:"question"    gorm:"type:text;not null;default:''"`
	ShortName  string     `json:"short_name"  gorm:"type:varchar(64);not null;default:''"`
	AnswerType AnswerType `json:"answer_type" gorm:"type:varchar(32);not null;default:'yes_no'"`
	Required   bool       `json:"required"    gorm:"not null;default:false"`
	OrderIndex int        `json:"order_index" gorm:"not null;default:0;index:idx_item_group_order,priority:2"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Group Group `json:"-" gorm:"foreignKey:GroupID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Item.
func (Item) TableName() string { return "form_items" }

// BeforeCreate assigns a UUID when the caller did not supply one.
func (it *Item) BeforeCreate(*gorm.DB) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	return nil
}

// Option is one selectable answer of an item. Value is derived from Label
// and is never edited directly. At most one option per item is the default.
type Option struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	ItemID     string    `json:"item_id"     gorm:"type:char(36);not null;index:idx_option_item_order,priority:1"`
	Label      string    `json:"label"       gorm:"type:varchar(255);not null"`
	Value      string    `json:"value"       gorm:"type:varchar(255);not null;default:''"`
	IsDefault  bool      `json:"is_default"  gorm:"not null;default:false"`
	IsCorrect  bool      `json:"is_correct"  gorm:"not null;default:false"`
	Color      string    `json:"color"       gorm:"type:varchar(32);not null;default:''"`
	OrderIndex int       `json:"order_index" gorm:"not null;default:0;index:idx_option_item_order,priority:2"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Item Item `json:"-" gorm:"foreignKey:ItemID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Option.
func (Option) TableName() string { return "form_options" }

// BeforeCreate assigns a UUID when the caller did not supply one.
func (o *Option) BeforeCreate(*gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// FeedbackGeneral is the free-text feedback template of an option, one per
// (option, author) pair.
type FeedbackGeneral struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	OptionID  string    `json:"option_id" gorm:"type:char(36);not null;uniqueIndex:ux_feedback_option_author"`
	AuthorID  string    `json:"author_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_feedback_option_author"`
	Text      string    `json:"text"      gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Option Option `json:"-" gorm:"foreignKey:OptionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for FeedbackGeneral.
func (FeedbackGeneral) TableName() string { return "feedback_general" }

// BeforeCreate assigns a UUID when the caller did not supply one.
func (f *FeedbackGeneral) BeforeCreate(*gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// FeedbackTag is a named feedback template scoped to one option. Tags are
// activated in addition to (and take precedence over) the general template.
type FeedbackTag struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	OptionID   string    `json:"option_id"   gorm:"type:char(36);not null;index:idx_tag_option_order,priority:1"`
	Name       string    `json:"name"        gorm:"type:varchar(128);not null"`
	Text       string    `json:"text"        gorm:"type:text;not null"`
	OrderIndex int       `json:"order_index" gorm:"not null;default:0;index:idx_tag_option_order,priority:2"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Option Option `json:"-" gorm:"foreignKey:OptionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for FeedbackTag.
func (FeedbackTag) TableName() string { return "feedback_tags" }

// BeforeCreate assigns a UUID when the caller did not supply one.
func (t *FeedbackTag) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// FormSnapshot is a flat read of one form and everything beneath it, as
// returned by the store. Slices are ordered by (parent, order_index).
type FormSnapshot struct {
	Form     Form
	Groups   []Group
	Items    []Item
	Options  []Option
	General  []FeedbackGeneral
	Tags     []FeedbackTag
	AuthorID string
}
