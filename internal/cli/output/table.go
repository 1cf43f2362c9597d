package output

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
)

// TableFormatter renders data as aligned columns.
//
// A *Table renders as is. A struct renders as FIELD/VALUE rows named after
// its json tags, a map as KEY/VALUE rows, and a slice of structs as one row
// per element. Anything else falls back to JSON.
type TableFormatter struct {
	NoHeaders bool
}

// Format implements Formatter.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	if data == nil {
		return nil
	}
	switch t := data.(type) {
	case *Table:
		return t.render(w, f.NoHeaders)
	case Table:
		return t.render(w, f.NoHeaders)
	}

	t, ok := toTable(reflect.ValueOf(data))
	if !ok {
		return (&JSONFormatter{}).Format(w, data)
	}
	return t.render(w, f.NoHeaders)
}

// Table is tabular text.
type Table struct {
	Headers []string
	Rows    [][]string
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

func (t Table) render(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !noHeaders && len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func toTable(v reflect.Value) (*Table, bool) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return &Table{}, true
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		t := NewTable("FIELD", "VALUE")
		eachField(v, func(name string, fv reflect.Value) {
			t.AddRow(name, cell(fv))
		})
		return t, true
	case reflect.Map:
		t := NewTable("KEY", "VALUE")
		rows := make(map[string]reflect.Value, v.Len())
		names := make([]string, 0, v.Len())
		for _, k := range v.MapKeys() {
			name := fmt.Sprint(k.Interface())
			rows[name] = v.MapIndex(k)
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			t.AddRow(name, cell(rows[name]))
		}
		return t, true
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return &Table{}, true
		}
		elem := v.Index(0)
		for elem.Kind() == reflect.Pointer && !elem.IsNil() {
			elem = elem.Elem()
		}
		if elem.Kind() != reflect.Struct {
			return nil, false
		}
		t := &Table{}
		eachField(elem, func(name string, _ reflect.Value) {
			t.Headers = append(t.Headers, strings.ToUpper(name))
		})
		for i := 0; i < v.Len(); i++ {
			e := v.Index(i)
			for e.Kind() == reflect.Pointer && !e.IsNil() {
				e = e.Elem()
			}
			var row []string
			eachField(e, func(_ string, fv reflect.Value) {
				row = append(row, cell(fv))
			})
			t.AddRow(row...)
		}
		return t, true
	}
	return nil, false
}

// eachField visits exported fields under their json names, skipping
// fields tagged json:"-" or table:"-".
func eachField(v reflect.Value, fn func(name string, fv reflect.Value)) {
	if v.Kind() != reflect.Struct {
		return
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("table") == "-" {
			continue
		}
		name := f.Name
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag == "-" {
			continue
		} else if tag != "" {
			name = tag
		}
		fn(name, v.Field(i))
	}
}

// cell renders one value. Nested structures are shown as compact JSON.
func cell(v reflect.Value) string {
	if !v.IsValid() {
		return "-"
	}
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "-"
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.String:
		if v.Len() == 0 {
			return "-"
		}
		return v.String()
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if f == float64(int64(f)) {
			return fmt.Sprintf("%d", int64(f))
		}
		return fmt.Sprintf("%.2f", f)
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		if v.Kind() != reflect.Struct && v.Len() == 0 {
			return "-"
		}
		raw, err := json.Marshal(v.Interface())
		if err != nil {
			return fmt.Sprint(v.Interface())
		}
		return string(raw)
	default:
		return fmt.Sprint(v.Interface())
	}
}
