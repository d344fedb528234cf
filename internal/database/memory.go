package database

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrStoreClosed is returned by a closed MemoryStore
var ErrStoreClosed = errors.New("store closed")

// MemoryStore is an in-process Store used for memory:// URIs and tests.
//
// Filters support top-level and dotted-path equality plus $eq, $ne, $gt,
// $gte, $lt, $lte, $in, $exists, $regex and $text. Updates support $set and
// $setOnInsert. Aggregation supports $match, $group with $sum, $sort and $limit.
type MemoryStore struct {
	name string

	mu          sync.RWMutex
	collections map[string][]bson.M
	indexes     map[string][]mongo.IndexModel
	failure     error
	closed      atomic.Bool
}

// NewMemoryStore creates an empty store
func NewMemoryStore(name string) *MemoryStore {
	if name == "" {
		name = defaultDBName
	}
	return &MemoryStore{
		name:        name,
		collections: make(map[string][]bson.M),
		indexes:     make(map[string][]mongo.IndexModel),
	}
}

func (s *MemoryStore) Collection(name string) Collection {
	return &memoryCollection{store: s, name: name}
}

func (s *MemoryStore) Name() string     { return s.name }
func (s *MemoryStore) IsFallback() bool { return false }
func (s *MemoryStore) Host() string     { return "memory" }

func (s *MemoryStore) Ping(context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close(context.Context) error {
	s.closed.Store(true)
	return nil
}

// Closed reports whether Close was called
func (s *MemoryStore) Closed() bool { return s.closed.Load() }

// SetFailure makes every subsequent operation return err; nil restores normal behavior
func (s *MemoryStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// Indexes returns the index models created on a collection
func (s *MemoryStore) Indexes(collection string) []mongo.IndexModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]mongo.IndexModel(nil), s.indexes[collection]...)
}

// Len returns the number of documents in a collection
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func (s *MemoryStore) check() error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return s.failure
}

// MemoryDialer hands out one shared MemoryStore
type MemoryDialer struct {
	Store *MemoryStore
}

// NewMemoryDialer creates a dialer over a fresh store named after the URI path
func NewMemoryDialer(uri string) *MemoryDialer {
	return &MemoryDialer{Store: NewMemoryStore(extractDBName(uri))}
}

func (d *MemoryDialer) Dial(ctx context.Context, _ string, _ EventSink) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.Store.closed.Store(false)
	return d.Store, nil
}

type memoryCollection struct {
	store *MemoryStore
	name  string
}

func (c *memoryCollection) InsertOne(_ context.Context, document interface{}) (interface{}, error) {
	doc, err := toDoc(document)
	if err != nil {
		return nil, err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if err := c.store.check(); err != nil {
		return nil, err
	}
	id, ok := doc["_id"]
	if !ok || isZeroID(id) {
		id = primitive.NewObjectID()
		doc["_id"] = id
	}
	c.store.collections[c.name] = append(c.store.collections[c.name], doc)
	return id, nil
}

func (c *memoryCollection) FindOne(_ context.Context, filter interface{}, out interface{}) (bool, error) {
	f, err := toDoc(filter)
	if err != nil {
		return false, err
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	if err := c.store.check(); err != nil {
		return false, err
	}
	for _, doc := range c.store.collections[c.name] {
		if matches(doc, f) {
			return true, decodeInto(doc, out)
		}
	}
	return false, nil
}

func (c *memoryCollection) Find(_ context.Context, filter interface{}, out interface{}, opts FindOptions) error {
	f, err := toDoc(filter)
	if err != nil {
		return err
	}
	c.store.mu.RLock()
	var found []bson.M
	if err := c.store.check(); err != nil {
		c.store.mu.RUnlock()
		return err
	}
	for _, doc := range c.store.collections[c.name] {
		if matches(doc, f) {
			found = append(found, doc)
		}
	}
	c.store.mu.RUnlock()

	sortDocs(found, opts.Sort)
	if opts.Limit > 0 && int64(len(found)) > opts.Limit {
		found = found[:opts.Limit]
	}
	return decodeSlice(found, out)
}

func (c *memoryCollection) UpdateOne(_ context.Context, filter interface{}, update interface{}, upsert bool) (*UpdateResult, error) {
	f, err := toDoc(filter)
	if err != nil {
		return nil, err
	}
	u, err := toDoc(update)
	if err != nil {
		return nil, err
	}
	for key := range u {
		if key != "$set" && key != "$setOnInsert" {
			return nil, fmt.Errorf("memory store: unsupported update operator %q", key)
		}
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if err := c.store.check(); err != nil {
		return nil, err
	}

	for _, doc := range c.store.collections[c.name] {
		if matches(doc, f) {
			applySet(doc, u["$set"])
			return &UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
		}
	}
	if !upsert {
		return &UpdateResult{}, nil
	}

	doc := bson.M{}
	for key, value := range f {
		if strings.HasPrefix(key, "$") {
			continue
		}
		if _, isOp := operatorDoc(value); !isOp {
			setPath(doc, key, value)
		}
	}
	applySet(doc, u["$setOnInsert"])
	applySet(doc, u["$set"])
	id := primitive.NewObjectID()
	doc["_id"] = id
	c.store.collections[c.name] = append(c.store.collections[c.name], doc)
	return &UpdateResult{UpsertedID: id}, nil
}

func (c *memoryCollection) CountDocuments(_ context.Context, filter interface{}) (int64, error) {
	f, err := toDoc(filter)
	if err != nil {
		return 0, err
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	if err := c.store.check(); err != nil {
		return 0, err
	}
	var n int64
	for _, doc := range c.store.collections[c.name] {
		if matches(doc, f) {
			n++
		}
	}
	return n, nil
}

func (c *memoryCollection) Aggregate(_ context.Context, pipeline interface{}, out interface{}) error {
	stages, err := toStages(pipeline)
	if err != nil {
		return err
	}
	c.store.mu.RLock()
	if err := c.store.check(); err != nil {
		c.store.mu.RUnlock()
		return err
	}
	docs := append([]bson.M(nil), c.store.collections[c.name]...)
	c.store.mu.RUnlock()

	for _, stage := range stages {
		docs, err = applyStage(docs, stage)
		if err != nil {
			return err
		}
	}
	return decodeSlice(docs, out)
}

func (c *memoryCollection) CreateIndex(_ context.Context, model mongo.IndexModel) (string, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if err := c.store.check(); err != nil {
		return "", err
	}
	c.store.indexes[c.name] = append(c.store.indexes[c.name], model)
	return indexName(model), nil
}

func indexName(model mongo.IndexModel) string {
	if model.Options != nil && model.Options.Name != nil {
		return *model.Options.Name
	}
	var parts []string
	if keys, ok := model.Keys.(bson.D); ok {
		for _, e := range keys {
			parts = append(parts, fmt.Sprintf("%s_%v", e.Key, e.Value))
		}
	}
	return strings.Join(parts, "_")
}

func toDoc(v interface{}) (bson.M, error) {
	if v == nil {
		return bson.M{}, nil
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	return doc, nil
}

func toStages(pipeline interface{}) ([]bson.M, error) {
	rv := reflect.ValueOf(pipeline)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("memory store: pipeline must be a slice, got %T", pipeline)
	}
	stages := make([]bson.M, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		stage, err := toDoc(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

func decodeInto(doc bson.M, out interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}

func decodeSlice(docs []bson.M, out interface{}) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("memory store: results argument must be a pointer to a slice, got %T", out)
	}
	slice := rv.Elem()
	elemType := slice.Type().Elem()
	result := reflect.MakeSlice(slice.Type(), 0, len(docs))
	for _, doc := range docs {
		elem := reflect.New(elemType)
		if err := decodeInto(doc, elem.Interface()); err != nil {
			return err
		}
		result = reflect.Append(result, elem.Elem())
	}
	slice.Set(result)
	return nil
}

func isZeroID(id interface{}) bool {
	switch v := id.(type) {
	case nil:
		return true
	case primitive.ObjectID:
		return v.IsZero()
	case string:
		return v == ""
	}
	return false
}

func asMap(v interface{}) (bson.M, bool) {
	switch d := v.(type) {
	case bson.M:
		return d, true
	case map[string]interface{}:
		return bson.M(d), true
	case bson.D:
		m := make(bson.M, len(d))
		for _, e := range d {
			m[e.Key] = e.Value
		}
		return m, true
	}
	return nil, false
}

func lookup(doc bson.M, path string) (interface{}, bool) {
	var current interface{} = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func setPath(doc bson.M, path string, value interface{}) {
	parts := strings.Split(path, ".")
	current := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(current[part])
		if !ok {
			next = bson.M{}
		}
		current[part] = next
		current = next
	}
	current[parts[len(parts)-1]] = value
}

func applySet(doc bson.M, set interface{}) {
	fields, ok := asMap(set)
	if !ok {
		return
	}
	for key, value := range fields {
		setPath(doc, key, value)
	}
}

func operatorDoc(v interface{}) (bson.M, bool) {
	m, ok := asMap(v)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for key := range m {
		if !strings.HasPrefix(key, "$") {
			return nil, false
		}
	}
	return m, true
}

func matches(doc bson.M, filter bson.M) bool {
	for key, cond := range filter {
		if key == "$text" {
			if !matchText(doc, cond) {
				return false
			}
			continue
		}
		value, present := lookup(doc, key)
		if ops, isOps := operatorDoc(cond); isOps {
			for op, arg := range ops {
				if !applyOperator(op, value, present, arg, ops) {
					return false
				}
			}
			continue
		}
		if !present || !equalValues(value, cond) {
			return false
		}
	}
	return true
}

func applyOperator(op string, value interface{}, present bool, arg interface{}, ops bson.M) bool {
	switch op {
	case "$eq":
		return present && equalValues(value, arg)
	case "$ne":
		return !present || !equalValues(value, arg)
	case "$exists":
		want, _ := arg.(bool)
		return present == want
	case "$in":
		items := reflect.ValueOf(arg)
		if items.Kind() != reflect.Slice {
			return false
		}
		for i := 0; i < items.Len(); i++ {
			if present && equalValues(value, items.Index(i).Interface()) {
				return true
			}
		}
		return false
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false
		}
		cmp, ok := compareValues(value, arg)
		if !ok {
			return false
		}
		switch op {
		case "$gt":
			return cmp > 0
		case "$gte":
			return cmp >= 0
		case "$lt":
			return cmp < 0
		default:
			return cmp <= 0
		}
	case "$regex":
		s, ok := value.(string)
		if !ok {
			return false
		}
		pattern := fmt.Sprint(arg)
		if opts, _ := ops["$options"].(string); strings.Contains(opts, "i") {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		return err == nil && re.MatchString(s)
	case "$options":
		return true
	}
	return false
}

func matchText(doc bson.M, cond interface{}) bool {
	m, ok := asMap(cond)
	if !ok {
		return false
	}
	search, _ := m["$search"].(string)
	terms := strings.Fields(strings.ToLower(search))
	if len(terms) == 0 {
		return false
	}
	var text strings.Builder
	collectStrings(doc, &text)
	haystack := strings.ToLower(text.String())
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			return true
		}
	}
	return false
}

func collectStrings(v interface{}, b *strings.Builder) {
	switch t := v.(type) {
	case string:
		b.WriteString(t)
		b.WriteByte(' ')
	case bson.A:
		for _, item := range t {
			collectStrings(item, b)
		}
	default:
		if m, ok := asMap(v); ok {
			for _, item := range m {
				collectStrings(item, b)
			}
		}
	}
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case time.Time:
		return float64(primitive.NewDateTimeFromTime(t))
	case primitive.DateTime:
		return float64(t)
	}
	return v
}

func equalValues(a, b interface{}) bool {
	if arr, ok := a.(bson.A); ok {
		for _, item := range arr {
			if equalValues(item, b) {
				return true
			}
		}
	}
	return reflect.DeepEqual(normalizeValue(a), normalizeValue(b))
}

func compareValues(a, b interface{}) (int, bool) {
	na, nb := normalizeValue(a), normalizeValue(b)
	switch x := na.(type) {
	case float64:
		y, ok := nb.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := nb.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	}
	return 0, false
}

func sortDocs(docs []bson.M, spec bson.D) {
	if len(spec) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range spec {
			vi, _ := lookup(docs[i], key.Key)
			vj, _ := lookup(docs[j], key.Key)
			cmp, ok := compareValues(vi, vj)
			if !ok || cmp == 0 {
				continue
			}
			if direction, _ := normalizeValue(key.Value).(float64); direction < 0 {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func applyStage(docs []bson.M, stage bson.M) ([]bson.M, error) {
	for op, arg := range stage {
		switch op {
		case "$match":
			filter, _ := asMap(arg)
			var out []bson.M
			for _, doc := range docs {
				if matches(doc, filter) {
					out = append(out, doc)
				}
			}
			return out, nil
		case "$group":
			spec, _ := asMap(arg)
			return groupDocs(docs, spec), nil
		case "$sort":
			spec, _ := asMap(arg)
			var order bson.D
			for key, dir := range spec {
				order = append(order, bson.E{Key: key, Value: dir})
			}
			sortDocs(docs, order)
			return docs, nil
		case "$limit":
			n, ok := normalizeValue(arg).(float64)
			if ok && int(n) < len(docs) {
				docs = docs[:int(n)]
			}
			return docs, nil
		default:
			return nil, fmt.Errorf("memory store: unsupported aggregation stage %q", op)
		}
	}
	return docs, nil
}

func groupDocs(docs []bson.M, spec bson.M) []bson.M {
	keyExpr := spec["_id"]
	groups := make(map[string]bson.M)
	var order []string
	for _, doc := range docs {
		key := fieldRef(doc, keyExpr)
		id := fmt.Sprint(key)
		group, ok := groups[id]
		if !ok {
			group = bson.M{"_id": key}
			groups[id] = group
			order = append(order, id)
		}
		for field, acc := range spec {
			if field == "_id" {
				continue
			}
			accumulator, _ := asMap(acc)
			addend, ok := normalizeValue(fieldRef(doc, accumulator["$sum"])).(float64)
			if !ok {
				continue
			}
			current, _ := group[field].(float64)
			group[field] = current + addend
		}
	}
	out := make([]bson.M, 0, len(order))
	for _, id := range order {
		out = append(out, groups[id])
	}
	return out
}

func fieldRef(doc bson.M, expr interface{}) interface{} {
	if s, ok := expr.(string); ok && strings.HasPrefix(s, "$") {
		v, _ := lookup(doc, strings.TrimPrefix(s, "$"))
		return v
	}
	return expr
}
