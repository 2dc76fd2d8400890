package decoder

// Class describes one output class to the host.
type Class struct {
	ID          string
	Description string
}

// Row groups annotation classes for display.
type Row struct {
	ID      string
	Name    string
	Classes []AnnotationClass
}

// Info is the static description of the decoder.
type Info struct {
	ID                string
	Name              string
	Description       string
	License           string
	Inputs            []string
	Tags              []string
	AnnotationClasses []Class
	AnnotationRows    []Row
	BinaryClasses     []Class
}

// Metadata returns the decoder description exposed to hosts.
func Metadata() Info {
	return Info{
		ID:          "k-line",
		Name:        "K-Line",
		Description: "ISO 9141 / KWP2000 K-Line frame decoder",
		License:     "gplv2+",
		Inputs:      []string{"uart"},
		Tags:        []string{"Automotive"},
		AnnotationClasses: []Class{
			{"data", "K-Line data"},
			{"control", "Protocol info"},
			{"error", "Error descriptions"},
			{"inline_error", "Protocol violations and errors"},
		},
		AnnotationRows: []Row{
			{ID: "data", Name: "Data", Classes: []AnnotationClass{ClassData, ClassControl, ClassInlineError}},
			{ID: "error", Name: "Error", Classes: []AnnotationClass{ClassError}},
		},
		BinaryClasses: []Class{
			{"tester", "Tester requests"},
			{"device", "Device responses"},
			{"dump", "TSV formatted dump"},
		},
	}
}

// RowFor returns the display row holding class c.
func (i Info) RowFor(c AnnotationClass) string {
	for _, r := range i.AnnotationRows {
		for _, rc := range r.Classes {
			if rc == c {
				return r.Name
			}
		}
	}
	return ""
}

// String returns the class id, e.g. "inline_error".
func (c AnnotationClass) String() string {
	classes := Metadata().AnnotationClasses
	if int(c) < 0 || int(c) >= len(classes) {
		return "unknown"
	}
	return classes[c].ID
}

// String returns the class id, e.g. "tester".
func (c BinaryClass) String() string {
	classes := Metadata().BinaryClasses
	if int(c) < 0 || int(c) >= len(classes) {
		return "unknown"
	}
	return classes[c].ID
}
