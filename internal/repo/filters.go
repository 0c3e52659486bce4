package repo

type filter struct {
	id     *string
	fields map[string]any
	fn     func(any) bool
}

type Filter func(*filter)

func ByID(id string) Filter {
	return func(f *filter) {
		f.id = &id
	}
}

func ByField(name string, value any) Filter {
	return func(f *filter) {
		if f.fields == nil {
			f.fields = make(map[string]any, 1)
		}
		f.fields[name] = value
	}
}

func Where[T any](filterFunc func(T) bool) Filter {
	check := func(x any) bool {
		t, ok := x.(T)
		return ok && filterFunc(t)
	}
	return func(f *filter) {
		f.fn = check
	}
}

func collect(filters []Filter) filter {
	var f filter
	for _, apply := range filters {
		apply(&f)
	}
	return f
}

func (f filter) match(id string, data any) bool {
	if f.id != nil && *f.id != id {
		return false
	}
	if f.fn != nil && !f.fn(data) {
		return false
	}
	return true
}
