package jsoncursor

// Kind classifies the next token of a stream.
type Kind int

// Token kinds. Name is a string in member-name position of an object.
const (
	Invalid Kind = iota
	BeginObject
	EndObject
	BeginArray
	EndArray
	Name
	String
	Number
	Bool
	Null
)

var kindNames = [...]string{
	Invalid:     "invalid",
	BeginObject: "begin object",
	EndObject:   "end object",
	BeginArray:  "begin array",
	EndArray:    "end array",
	Name:        "name",
	String:      "string",
	Number:      "number",
	Bool:        "bool",
	Null:        "null",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}
