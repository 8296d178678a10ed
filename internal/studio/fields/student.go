package fields

// Student is one roster entry supplied by the hosting application.
type Student struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	FatherName  string `json:"fatherName,omitempty"`
	Class       string `json:"class,omitempty"`
	Section     string `json:"section,omitempty"`
	RollNumber  string `json:"rollNumber,omitempty"`
	StudentID   string `json:"studentId,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Address     string `json:"address,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Phone       string `json:"phone,omitempty"`
	BloodGroup  string `json:"bloodGroup,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty"`

	// Extra carries school/custom values merged into the record.
	Extra map[string]string `json:"extra,omitempty"`
}

// StudentKeys is the fixed set of student attributes available to templates.
var StudentKeys = []string{
	StudentName, FatherName, Class, Section, RollNumber, StudentID,
	DateOfBirth, Address, Gender, Phone, BloodGroup, Photo,
}

func (s Student) Record() Record {
	rec := Record{
		StudentName: s.Name,
		FatherName:  s.FatherName,
		Class:       s.Class,
		Section:     s.Section,
		RollNumber:  s.RollNumber,
		StudentID:   s.StudentID,
		DateOfBirth: s.DateOfBirth,
		Address:     s.Address,
		Gender:      s.Gender,
		Phone:       s.Phone,
		BloodGroup:  s.BloodGroup,
		Photo:       s.PhotoURL,
	}
	if rec[StudentID] == "" {
		rec[StudentID] = s.ID
	}
	for k, v := range s.Extra {
		if _, ok := rec[k]; !ok {
			rec[k] = v
		}
	}
	return rec
}

// StudentRecord copies record and guarantees every student key is present,
// empty-string defaulted.
func StudentRecord(record Record) Record {
	out := make(Record, len(record)+len(StudentKeys))
	for _, key := range StudentKeys {
		out[key] = ""
	}
	for k, v := range record {
		out[k] = v
	}
	return out
}
