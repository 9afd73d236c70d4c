package relation

// nullValue is the type of the NULL sentinel.
type nullValue struct{}

func (nullValue) String() string { return "NULL" }

// NULL is the SQL NULL sentinel. Assigning NULL constrains a field to
// "IS NULL"; assigning Go nil unsets the constraint instead.
var NULL = nullValue{}
