package vocab

// InternTable assigns dense integer ids to strings in first-seen order.
// Lookups never allocate; only GetOrCreate does.
type InternTable struct {
	toID   map[string]int
	toWord []string
}

// NewInternTable creates a table pre-seeded with the given keys.
func NewInternTable(reserved ...string) *InternTable {
	t := &InternTable{toID: make(map[string]int)}
	for _, k := range reserved {
		t.GetOrCreate(k)
	}
	return t
}

// GetOrCreate returns the id of key, assigning the next id if key is new.
func (t *InternTable) GetOrCreate(key string) int {
	if id, ok := t.toID[key]; ok {
		return id
	}
	id := len(t.toWord)
	t.toID[key] = id
	t.toWord = append(t.toWord, key)
	return id
}

// Lookup returns the id of key without modifying the table.
func (t *InternTable) Lookup(key string) (int, bool) {
	id, ok := t.toID[key]
	return id, ok
}

// Word returns the key with the given id.
func (t *InternTable) Word(id int) (string, bool) {
	if id < 0 || id >= len(t.toWord) {
		return "", false
	}
	return t.toWord[id], true
}

// Len returns the number of interned keys.
func (t *InternTable) Len() int {
	return len(t.toWord)
}

// WordToID returns a copy of the key -> id mapping.
func (t *InternTable) WordToID() map[string]int {
	out := make(map[string]int, len(t.toID))
	for k, v := range t.toID {
		out[k] = v
	}
	return out
}

// IDToWord returns a copy of the id -> key mapping.
func (t *InternTable) IDToWord() map[int]string {
	out := make(map[int]string, len(t.toWord))
	for i, w := range t.toWord {
		out[i] = w
	}
	return out
}
