package flatten

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const linkField = "_link"

// Native is the in-process Flattener.
type Native struct{}

// Flatten implements Flattener.
func (Native) Flatten(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	return Flatten(ctx, r, opts)
}

// Flatten reads one document from r and returns its tables.
func Flatten(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	b := newBuilder(opts)

	var err error
	switch {
	case opts.JSONStream:
		err = b.readStream(ctx, r)
	case len(opts.Path) > 0:
		err = b.readPath(ctx, r)
	default:
		err = b.readTop(ctx, r)
	}
	if err != nil {
		return nil, err
	}
	if b.main.rowCount() == 0 {
		return nil, errors.New("no objects found to flatten")
	}

	if opts.InlineOneToOne {
		b.inlineOneToOne()
	}
	res := b.result()
	if err := applyOverrides(res, opts); err != nil {
		return nil, err
	}
	if opts.Preview > 0 {
		for _, t := range res.Tables {
			if len(t.Rows) > opts.Preview {
				t.Rows = t.Rows[:opts.Preview]
			}
		}
	}
	return res, nil
}

type cell struct {
	text string
	kind string
}

type row struct {
	keys []string
	vals map[string]cell
}

func newRow() *row {
	return &row{vals: make(map[string]cell)}
}

func (r *row) set(key string, c cell) {
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = c
}

type fieldStat struct {
	kinds map[string]bool
	count int
}

type table struct {
	name     string
	parent   *table
	relPath  []string
	rows     []*row
	fields   []string
	stats    map[string]*fieldStat
	maxItems int
	pushKeys map[string]bool
}

func (t *table) rowCount() int { return len(t.rows) }

func (t *table) add(r *row) {
	for _, key := range r.keys {
		st, ok := t.stats[key]
		if !ok {
			st = &fieldStat{kinds: make(map[string]bool)}
			t.stats[key] = st
			t.fields = append(t.fields, key)
		}
		c := r.vals[key]
		if c.text != "" {
			st.count++
			st.kinds[c.kind] = true
		}
	}
	t.rows = append(t.rows, r)
}

type ancestor struct {
	table *table
	link  string
	row   *row
}

type builder struct {
	opts   Options
	main   *table
	tables map[string]*table
	order  []*table
}

func newBuilder(opts Options) *builder {
	b := &builder{opts: opts, tables: make(map[string]*table)}
	b.main = b.table(opts.MainTableName, nil, nil)
	return b
}

func (b *builder) table(name string, parent *table, rel []string) *table {
	if t, ok := b.tables[name]; ok {
		return t
	}
	t := &table{
		name:     name,
		parent:   parent,
		relPath:  append([]string(nil), rel...),
		stats:    make(map[string]*fieldStat),
		pushKeys: make(map[string]bool),
	}
	b.tables[name] = t
	b.order = append(b.order, t)
	return t
}

func (b *builder) readTop(ctx context.Context, r io.Reader) error {
	dec := newDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read JSON: %w", err)
	}
	if delim, ok := tok.(json.Delim); ok && delim == '[' {
		for n := 0; dec.More(); n++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := decodeValue(dec)
			if err != nil {
				return fmt.Errorf("read JSON: %w", err)
			}
			if err := b.top(v, n); err != nil {
				return err
			}
		}
		if _, err := dec.Token(); err != nil {
			return fmt.Errorf("read JSON: %w", err)
		}
		return nil
	}

	v, err := decodeFrom(dec, tok)
	if err != nil {
		return fmt.Errorf("read JSON: %w", err)
	}
	return b.top(v, 0)
}

func (b *builder) readStream(ctx context.Context, r io.Reader) error {
	dec := newDecoder(r)
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := decodeValue(dec)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read JSON stream item %d: %w", n, err)
		}
		if err := b.top(v, n); err != nil {
			return err
		}
	}
}

func (b *builder) readPath(ctx context.Context, r io.Reader) error {
	v, err := decodeValue(newDecoder(r))
	if err != nil {
		return fmt.Errorf("read JSON: %w", err)
	}
	for _, key := range b.opts.Path {
		obj, ok := v.(*object)
		if !ok {
			return fmt.Errorf("path %q: %w", strings.Join(b.opts.Path, "."), errNotObject)
		}
		if v, ok = obj.get(key); !ok {
			return fmt.Errorf("key %q not found in JSON object", key)
		}
	}
	items, ok := v.([]any)
	if !ok {
		return fmt.Errorf("path %q does not hold an array", strings.Join(b.opts.Path, "."))
	}
	for n, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.top(item, n); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) top(v any, n int) error {
	obj, ok := v.(*object)
	if !ok {
		return fmt.Errorf("item %d: %w", n, errNotObject)
	}
	b.emit(b.main, obj, strconv.Itoa(n), nil)
	return nil
}

type pending struct {
	path  []string
	items []*object
}

func (b *builder) emit(t *table, obj *object, link string, ancestors []ancestor) {
	sep := b.opts.PathSeparator
	r := newRow()
	r.set(linkField, cell{text: link, kind: TypeText})
	for _, anc := range ancestors {
		r.set(linkField+"_"+anc.table.name, cell{text: anc.link, kind: TypeText})
	}
	if n := len(ancestors); n > 0 {
		parent := ancestors[n-1]
		for _, field := range b.opts.Pushdown {
			c, ok := parent.row.vals[field]
			if !ok {
				continue
			}
			key := parent.table.name + sep + field
			r.set(key, c)
			t.pushKeys[key] = true
		}
	}

	var children []pending
	b.collect(r, obj, nil, &children)
	t.add(r)

	self := append(append([]ancestor(nil), ancestors...), ancestor{table: t, link: link, row: r})
	for _, child := range children {
		name := strings.Join(child.path, sep)
		if t != b.main {
			name = t.name + sep + name
		}
		ct := b.table(name, t, child.path)
		if len(child.items) > ct.maxItems {
			ct.maxItems = len(child.items)
		}
		for i, item := range child.items {
			childLink := link + "." + strings.Join(child.path, ".") + "." + strconv.Itoa(i)
			b.emit(ct, item, childLink, self)
		}
	}
}

func (b *builder) collect(r *row, obj *object, prefix []string, children *[]pending) {
	sep := b.opts.PathSeparator
	for _, key := range obj.keys {
		path := append(append([]string(nil), prefix...), key)
		switch v := obj.values[key].(type) {
		case nil:
		case *object:
			b.collect(r, v, path, children)
		case []any:
			var objs []*object
			var scalars []string
			for _, item := range v {
				switch it := item.(type) {
				case *object:
					objs = append(objs, it)
				case nil:
				case []any:
					scalars = append(scalars, encodeValue(it))
				default:
					scalars = append(scalars, scalarCell(it).text)
				}
			}
			if len(objs) > 0 {
				*children = append(*children, pending{path: path, items: objs})
			} else if len(scalars) > 0 {
				r.set(strings.Join(path, sep), cell{text: strings.Join(scalars, ","), kind: TypeText})
			}
		default:
			r.set(strings.Join(path, sep), scalarCell(v))
		}
	}
}

func scalarCell(v any) cell {
	switch t := v.(type) {
	case string:
		return cell{text: t, kind: TypeText}
	case json.Number:
		return cell{text: t.String(), kind: TypeNumber}
	case bool:
		return cell{text: strconv.FormatBool(t), kind: TypeBoolean}
	default:
		return cell{text: fmt.Sprint(t), kind: TypeText}
	}
}

// inlineOneToOne folds tables that never hold more than one row per parent
// row into the parent. Tables are visited newest first so descendants fold
// before their ancestors.
func (b *builder) inlineOneToOne() {
	sep := b.opts.PathSeparator
	for i := len(b.order) - 1; i >= 0; i-- {
		t := b.order[i]
		if t.parent == nil || t.maxItems != 1 {
			continue
		}
		parent := t.parent
		byLink := make(map[string]*row, len(parent.rows))
		for _, pr := range parent.rows {
			byLink[pr.vals[linkField].text] = pr
		}
		prefix := strings.Join(t.relPath, sep)
		parentLinkKey := linkField + "_" + parent.name
		for _, cr := range t.rows {
			pr, ok := byLink[cr.vals[parentLinkKey].text]
			if !ok {
				continue
			}
			for _, key := range cr.keys {
				if key == linkField || strings.HasPrefix(key, linkField+"_") || t.pushKeys[key] {
					continue
				}
				pr.set(prefix+sep+key, cr.vals[key])
			}
		}
		// Rebuild the parent's field statistics with the new columns.
		rows := parent.rows
		parent.rows = nil
		parent.fields = nil
		parent.stats = make(map[string]*fieldStat)
		for _, pr := range rows {
			parent.add(pr)
		}
		for _, other := range b.order {
			if other.parent == t {
				other.parent = parent
				other.relPath = append(append([]string(nil), t.relPath...), other.relPath...)
			}
		}
		t.rows = nil
		t.parent = nil
		t.maxItems = -1
	}
}

func (b *builder) result() *Result {
	res := &Result{}
	for _, t := range b.order {
		if len(t.rows) == 0 {
			continue
		}
		out := &Table{Name: t.name, Title: b.opts.TablePrefix + t.name}
		for _, name := range t.fields {
			st := t.stats[name]
			out.Fields = append(out.Fields, Field{Name: name, Type: fieldType(st.kinds), Title: name, Count: st.count})
		}
		for _, r := range t.rows {
			values := make([]string, len(t.fields))
			for i, name := range t.fields {
				values[i] = r.vals[name].text
			}
			out.Rows = append(out.Rows, values)
		}
		res.Tables = append(res.Tables, out)
	}
	return res
}

func fieldType(kinds map[string]bool) string {
	if len(kinds) == 1 {
		for k := range kinds {
			return k
		}
	}
	return TypeText
}
