package testutil

// document is one row queued by Builder.
type document struct {
	url    string
	fields map[string]any
}

// DocOption configures a document during builder setup.
type DocOption func(map[string]any)

// Field sets a field value.
func Field(key string, value any) DocOption {
	return func(d map[string]any) { d[key] = value }
}

// Name sets the "name" field.
func Name(name string) DocOption {
	return Field("name", name)
}

// Title sets the "title" field.
func Title(title string) DocOption {
	return Field("title", title)
}

// Ref stores a bare identity in a reference field.
func Ref(field string, id any) DocOption {
	return Field(field, id)
}

// Nested stores a populated object in a reference field.
func Nested(field string, doc map[string]any) DocOption {
	return Field(field, doc)
}
