package models

import (
	"time"

	"gorm.io/datatypes"
)

// Node is one entry of the variant forest. Level-0 nodes are product
// families; a node with a NULL code and a non-NULL pattern is a pattern
// container and does not count as a configurator level of its own.
type Node struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	ParentID           *uint          `gorm:"index" json:"parent_id,omitempty"`
	Level              int            `gorm:"index" json:"level"`
	Code               *string        `gorm:"index;type:varchar(50)" json:"code"`
	Name               string         `gorm:"type:text" json:"name"`
	Label              string         `gorm:"type:text" json:"label"`
	LabelEN            *string        `gorm:"type:text" json:"label_en,omitempty"`
	Position           *int           `json:"position,omitempty"`
	Pattern            *int           `json:"pattern,omitempty"`
	FullTypecode       *string        `gorm:"index;type:text" json:"full_typecode,omitempty"`
	IsIntermediateCode bool           `gorm:"default:false" json:"is_intermediate_code"`
	GroupName          *string        `gorm:"type:text" json:"group_name,omitempty"`
	Pictures           datatypes.JSON `json:"pictures,omitempty"`
	Links              datatypes.JSON `json:"links,omitempty"`
}

func (Node) TableName() string {
	return "nodes"
}

// NodePath is one closure-table row: every node carries a depth-0 row to
// itself, and one row per ancestor with the hop count between them.
type NodePath struct {
	AncestorID   uint `gorm:"primaryKey;index:idx_paths_ancestor" json:"ancestor_id"`
	DescendantID uint `gorm:"primaryKey;index:idx_paths_descendant" json:"descendant_id"`
	Depth        int  `json:"depth"`
}

func (NodePath) TableName() string {
	return "node_paths"
}

// NodeLabel is a parsed segment of a node's structured label text. The
// positions are 1-based and inclusive within the node's code.
type NodeLabel struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	NodeID        uint    `gorm:"index" json:"node_id"`
	Title         string  `gorm:"type:text" json:"title"`
	CodeSegment   *string `gorm:"type:varchar(50)" json:"code_segment,omitempty"`
	PositionStart *int    `json:"position_start,omitempty"`
	PositionEnd   *int    `json:"position_end,omitempty"`
	LabelDE       string  `gorm:"type:text" json:"label_de"`
	LabelEN       *string `gorm:"type:text" json:"label_en,omitempty"`
	DisplayOrder  int     `json:"display_order"`
}

func (NodeLabel) TableName() string {
	return "node_labels"
}

// NodeDates aggregates catalogue date ranges per node, carried over from
// bulk imports. Dates stay in their source text form.
type NodeDates struct {
	NodeID               uint    `gorm:"primaryKey" json:"node_id"`
	TypecodeCount        int     `json:"typecode_count"`
	CreationEarliest     *string `gorm:"type:varchar(30)" json:"creation_earliest,omitempty"`
	CreationLatest       *string `gorm:"type:varchar(30)" json:"creation_latest,omitempty"`
	ModificationEarliest *string `gorm:"type:varchar(30)" json:"modification_earliest,omitempty"`
	ModificationLatest   *string `gorm:"type:varchar(30)" json:"modification_latest,omitempty"`
}

func (NodeDates) TableName() string {
	return "node_dates"
}

// Constraint restricts which codes may be picked at one level, given
// matches on earlier selections. Mode is "allow" or "deny".
type Constraint struct {
	ID          uint                  `gorm:"primaryKey" json:"id"`
	Level       int                   `gorm:"index" json:"level"`
	Mode        string                `gorm:"type:varchar(10)" json:"mode"`
	Description *string               `gorm:"type:text" json:"description,omitempty"`
	Conditions  []ConstraintCondition `gorm:"foreignKey:ConstraintID;constraint:OnDelete:CASCADE" json:"conditions"`
	Codes       []ConstraintCode      `gorm:"foreignKey:ConstraintID;constraint:OnDelete:CASCADE" json:"codes"`
	CreatedAt   time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Constraint) TableName() string {
	return "constraints"
}

// ConstraintCondition matches one earlier selection. ConditionType is
// "exact_code", "prefix" or "pattern" (code length, either "3" or a
// "2-4" range); TargetLevel names the selection level it applies to.
type ConstraintCondition struct {
	ID            uint   `gorm:"primaryKey" json:"id,omitempty"`
	ConstraintID  uint   `gorm:"index" json:"-"`
	ConditionType string `gorm:"type:varchar(20)" json:"condition_type"`
	TargetLevel   int    `json:"target_level"`
	Value         string `gorm:"type:text" json:"value"`
}

func (ConstraintCondition) TableName() string {
	return "constraint_conditions"
}

// ConstraintCode is one code entry of a constraint: CodeType "single"
// carries a literal code, "range" carries an expandable "A1-A9" span.
type ConstraintCode struct {
	ID           uint   `gorm:"primaryKey" json:"id,omitempty"`
	ConstraintID uint   `gorm:"index" json:"-"`
	CodeType     string `gorm:"type:varchar(10)" json:"code_type"`
	CodeValue    string `gorm:"type:varchar(50)" json:"code_value"`
}

func (ConstraintCode) TableName() string {
	return "constraint_codes"
}

// ProductSuccessor links a discontinued node or product to its replacement.
type ProductSuccessor struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	SourceNodeID      uint       `gorm:"index" json:"source_node_id"`
	TargetNodeID      *uint      `gorm:"index" json:"target_node_id,omitempty"`
	TargetFullCode    *string    `gorm:"type:text" json:"target_full_code,omitempty"`
	TargetFamilyCode  *string    `gorm:"type:varchar(50)" json:"target_family_code,omitempty"`
	SourceType        string     `gorm:"type:varchar(20)" json:"source_type"`
	ReplacementType   string     `gorm:"type:varchar(20);default:'successor'" json:"replacement_type"`
	MigrationNote     string     `gorm:"type:text" json:"migration_note"`
	MigrationNoteEN   *string    `gorm:"type:text" json:"migration_note_en,omitempty"`
	EffectiveDate     *time.Time `json:"effective_date,omitempty"`
	ShowWarning       bool       `gorm:"default:true" json:"show_warning"`
	AllowOldSelection bool       `gorm:"default:false" json:"allow_old_selection"`
	WarningSeverity   string     `gorm:"type:varchar(10);default:'info'" json:"warning_severity"`
	CreatedBy         string     `gorm:"type:varchar(100)" json:"created_by"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (ProductSuccessor) TableName() string {
	return "product_successors"
}

// KmatReference maps a configuration path inside a family to an external
// material number. PathNodeIDs is the ordered id list as a JSON array, and
// (family_id, path_node_ids) identifies the entry.
type KmatReference struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	FamilyID     uint           `gorm:"index;uniqueIndex:idx_kmat_family_path" json:"family_id"`
	PathNodeIDs  datatypes.JSON `gorm:"uniqueIndex:idx_kmat_family_path" json:"path_node_ids"`
	FullTypecode string         `gorm:"type:text" json:"full_typecode"`
	Reference    string         `gorm:"column:kmat_reference;type:varchar(100)" json:"kmat_reference"`
	CreatedBy    string         `gorm:"type:varchar(100)" json:"created_by"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (KmatReference) TableName() string {
	return "kmat_references"
}

// User is an admin-surface account.
type User struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	Username           string     `gorm:"uniqueIndex;type:varchar(100)" json:"username"`
	Email              string     `gorm:"type:varchar(255)" json:"email"`
	PasswordHash       string     `gorm:"type:text" json:"-"`
	Role               string     `gorm:"type:varchar(20);default:'user'" json:"role"`
	IsActive           bool       `gorm:"default:true" json:"is_active"`
	MustChangePassword bool       `gorm:"default:false" json:"must_change_password"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLogin          *time.Time `json:"last_login,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// SegmentSubsegment stores sub-position annotations for one code segment
// of a family group, e.g. character ranges inside a long option code.
type SegmentSubsegment struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	FamilyCode    string         `gorm:"index;type:varchar(50)" json:"family_code"`
	GroupName     string         `gorm:"type:text" json:"group_name"`
	Level         int            `json:"level"`
	PatternString *string        `gorm:"type:varchar(100)" json:"pattern_string,omitempty"`
	Subsegments   datatypes.JSON `json:"subsegments"`
	CreatedBy     string         `gorm:"type:varchar(100)" json:"created_by"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SegmentSubsegment) TableName() string {
	return "segment_subsegments"
}

// Picture is one entry of a node's pictures JSON array.
type Picture struct {
	URL         string  `json:"url"`
	Description *string `json:"description"`
	UploadedAt  string  `json:"uploaded_at"`
}

// Link is one entry of a node's links JSON array.
type Link struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	AddedAt     string  `json:"added_at"`
}

// IsPatternContainer reports whether the node is a pass-through pattern
// holder rather than a selectable option.
func (n *Node) IsPatternContainer() bool {
	return n.Code == nil && n.Pattern != nil
}

// CodeString returns the code or "" for pattern containers.
func (n *Node) CodeString() string {
	if n.Code == nil {
		return ""
	}
	return *n.Code
}
