package fields

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// ============================================================
// Dynamic Fields
// ============================================================

const (
	CategoryStudent = "student"
	CategorySchool  = "school"
	CategorySystem  = "system"
	CategoryCustom  = "custom"
)

const (
	DataText   = "text"
	DataNumber = "number"
	DataDate   = "date"
	DataImage  = "image"
	DataQR     = "qr"
)

// Format holds the per-field formatting rules.
type Format struct {
	Uppercase bool   `json:"uppercase,omitempty"`
	Lowercase bool   `json:"lowercase,omitempty"`
	MaxLength int    `json:"maxLength,omitempty" validate:"gte=0"`
	Prefix    string `json:"prefix,omitempty"`
	Suffix    string `json:"suffix,omitempty"`
}

type DynamicField struct {
	ID           string  `json:"id" validate:"required,fieldid"`
	Name         string  `json:"name" validate:"required"`
	Placeholder  string  `json:"placeholder"`
	Category     string  `json:"category" validate:"required,oneof=student school system custom"`
	DataType     string  `json:"dataType" validate:"required,oneof=text number date image qr"`
	Format       *Format `json:"format,omitempty"`
	Required     bool    `json:"required,omitempty"`
	DefaultValue string  `json:"defaultValue,omitempty"`
}

func (f DynamicField) clone() DynamicField {
	if f.Format != nil {
		format := *f.Format
		f.Format = &format
	}
	return f
}

// Token returns the placeholder token for a field id.
func Token(id string) string {
	return "{{" + id + "}}"
}

var (
	ErrFieldExists  = errors.New("field already registered")
	ErrInvalidField = errors.New("invalid field")

	fieldIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// ValidID reports whether id can appear inside a placeholder token.
func ValidID(id string) bool {
	return fieldIDPattern.MatchString(id)
}

// ============================================================
// Registry
// ============================================================

// Registry is the catalog of known fields. Entries never change once registered.
type Registry struct {
	mu     sync.RWMutex
	fields map[string]DynamicField
	order  []string
}

// NewRegistry returns a registry preloaded with the built-in catalog.
func NewRegistry() *Registry {
	r := &Registry{fields: make(map[string]DynamicField)}
	for _, f := range defaultFields() {
		_ = r.Register(f)
	}
	return r
}

// NewEmptyRegistry returns a registry without built-in fields.
func NewEmptyRegistry() *Registry {
	return &Registry{fields: make(map[string]DynamicField)}
}

func (r *Registry) Register(f DynamicField) error {
	if !ValidID(f.ID) || f.Name == "" {
		return fmt.Errorf("%w: %q", ErrInvalidField, f.ID)
	}
	if f.Placeholder == "" {
		f.Placeholder = Token(f.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.fields[f.ID]; ok {
		return fmt.Errorf("%w: %q", ErrFieldExists, f.ID)
	}
	r.fields[f.ID] = f.clone()
	r.order = append(r.order, f.ID)
	return nil
}

// Lookup is an exact, case-sensitive match on the field id.
func (r *Registry) Lookup(id string) (DynamicField, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fields[id]
	if !ok {
		return DynamicField{}, false
	}
	return f.clone(), true
}

// All returns fields in registration order.
func (r *Registry) All() []DynamicField {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]DynamicField, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.fields[id].clone())
	}
	return out
}

// ByCategory groups fields; categories are returned sorted.
func (r *Registry) ByCategory() map[string][]DynamicField {
	out := map[string][]DynamicField{}
	for _, f := range r.All() {
		out[f.Category] = append(out[f.Category], f)
	}
	for _, list := range out {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	}
	return out
}

// ============================================================
// Built-in catalog
// ============================================================

const (
	StudentName = "student_name"
	FatherName  = "father_name"
	Class       = "class"
	Section     = "section"
	RollNumber  = "roll_number"
	StudentID   = "student_id"
	DateOfBirth = "date_of_birth"
	Address     = "address"
	Gender      = "gender"
	Phone       = "phone"
	BloodGroup  = "blood_group"
	Photo       = "photo"

	SchoolName    = "school_name"
	SchoolAddress = "school_address"
	SchoolPhone   = "school_phone"
	SchoolLogo    = "school_logo"
	AcademicYear  = "academic_year"
)

func defaultFields() []DynamicField {
	return []DynamicField{
		{ID: StudentName, Name: "Student Name", Category: CategoryStudent, DataType: DataText, Required: true},
		{ID: FatherName, Name: "Father's Name", Category: CategoryStudent, DataType: DataText},
		{ID: Class, Name: "Class", Category: CategoryStudent, DataType: DataText, Required: true},
		{ID: Section, Name: "Section", Category: CategoryStudent, DataType: DataText},
		{ID: RollNumber, Name: "Roll Number", Category: CategoryStudent, DataType: DataNumber},
		{ID: StudentID, Name: "Student ID", Category: CategoryStudent, DataType: DataText, Required: true},
		{ID: DateOfBirth, Name: "Date of Birth", Category: CategoryStudent, DataType: DataDate},
		{ID: Address, Name: "Address", Category: CategoryStudent, DataType: DataText, Format: &Format{MaxLength: 80}},
		{ID: Gender, Name: "Gender", Category: CategoryStudent, DataType: DataText},
		{ID: Phone, Name: "Phone", Category: CategoryStudent, DataType: DataText},
		{ID: BloodGroup, Name: "Blood Group", Category: CategoryStudent, DataType: DataText, Format: &Format{Uppercase: true}},
		{ID: Photo, Name: "Photo", Category: CategoryStudent, DataType: DataImage},
		{ID: SchoolName, Name: "School Name", Category: CategorySchool, DataType: DataText},
		{ID: SchoolAddress, Name: "School Address", Category: CategorySchool, DataType: DataText},
		{ID: SchoolPhone, Name: "School Phone", Category: CategorySchool, DataType: DataText},
		{ID: SchoolLogo, Name: "School Logo", Category: CategorySchool, DataType: DataImage},
		{ID: AcademicYear, Name: "Academic Year", Category: CategorySystem, DataType: DataText},
	}
}
