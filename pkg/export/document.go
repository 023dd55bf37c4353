package export

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Field is a labelled value printed above or between tables.
type Field struct {
	Label string
	Value string
}

// Section groups a heading, loose fields and an optional table.
type Section struct {
	Heading string
	Fields  []Field
	Table   *Dataset
}

// Document is a printable multi-section report.
type Document struct {
	Title    string
	Subtitle string
	Sections []Section
}
