package plc

// Role partitions the member variables of a POU.
type Role int

const (
	RoleInput Role = iota
	RoleOutput
	RoleInOut
	RoleExternal
	RoleLocal
	RoleLocalConst
)

// Roles lists every role in declaration-block order.
var Roles = []Role{RoleInOut, RoleInput, RoleOutput, RoleExternal, RoleLocal, RoleLocalConst}

// String returns the role name used in messages.
func (r Role) String() string {
	switch r {
	case RoleInput:
		return "input"
	case RoleOutput:
		return "output"
	case RoleInOut:
		return "in-out"
	case RoleExternal:
		return "external"
	case RoleLocal:
		return "local"
	case RoleLocalConst:
		return "local constant"
	default:
		return "unknown"
	}
}

// POU is a function, function block or program.
type POU struct {
	Kind        Kind
	Name        string
	Descr       string
	ReturnType  string
	CodeType    string
	Body        string
	Inputs      []Variable
	Outputs     []Variable
	InOuts      []Variable
	Externals   []Variable
	Locals      []Variable
	LocalConsts []Variable
}

func (p POU) DeclName() string { return p.Name }
func (p POU) DeclKind() Kind   { return p.Kind }
func (POU) declaration()       {}

// Tag is the PLC source keyword that opens the POU.
func (p POU) Tag() string {
	switch p.Kind {
	case KindFunction:
		return "FUNCTION"
	case KindFunctionBlock:
		return "FUNCTION_BLOCK"
	default:
		return "PROGRAM"
	}
}

// Vars returns the member variables declared with role r.
func (p *POU) Vars(r Role) []Variable {
	return *p.vars(r)
}

func (p *POU) vars(r Role) *[]Variable {
	switch r {
	case RoleInput:
		return &p.Inputs
	case RoleOutput:
		return &p.Outputs
	case RoleInOut:
		return &p.InOuts
	case RoleExternal:
		return &p.Externals
	case RoleLocalConst:
		return &p.LocalConsts
	default:
		return &p.Locals
	}
}

// HasVars reports whether any member variable is declared.
func (p *POU) HasVars() bool {
	for _, r := range Roles {
		if len(p.Vars(r)) > 0 {
			return true
		}
	}
	return false
}

// AddVariable appends v to role r. Member names are unique across roles.
func (p *POU) AddVariable(r Role, v Variable) error {
	if err := v.validate(); err != nil {
		return err
	}
	for _, role := range Roles {
		for _, existing := range p.Vars(role) {
			if existing.Name == v.Name {
				return duplicate("variable of "+p.Name, v.Name)
			}
		}
	}
	if r == RoleLocalConst {
		v.Constant = true
	}
	vars := p.vars(r)
	*vars = append(*vars, v)
	return nil
}

// Parameter is a macro parameter.
type Parameter struct {
	Name  string
	Descr string
}

// Macro is a textual macro with parameters.
type Macro struct {
	Name     string
	Descr    string
	CodeType string
	Body     string
	Params   []Parameter
}

func (m Macro) DeclName() string { return m.Name }
func (Macro) DeclKind() Kind     { return KindMacro }
func (Macro) declaration()       {}

// AddParameter appends a parameter, rejecting duplicates.
func (m *Macro) AddParameter(p Parameter) error {
	if p.Name == "" {
		return invalid("empty parameter name in macro %q", m.Name)
	}
	for _, existing := range m.Params {
		if existing.Name == p.Name {
			return duplicate("parameter of macro "+m.Name, p.Name)
		}
	}
	m.Params = append(m.Params, p)
	return nil
}

// Struct is a structured data type.
type Struct struct {
	Name    string
	Descr   string
	Members []Variable
}

func (s Struct) DeclName() string { return s.Name }
func (Struct) DeclKind() Kind     { return KindStruct }
func (Struct) declaration()       {}

// AddMember appends a member, rejecting duplicates and located members.
func (s *Struct) AddMember(v Variable) error {
	if err := v.validate(); err != nil {
		return err
	}
	if v.HasAddress() {
		return invalid("struct member %q cannot have an address", v.Name)
	}
	for _, existing := range s.Members {
		if existing.Name == v.Name {
			return duplicate("member of struct "+s.Name, v.Name)
		}
	}
	s.Members = append(s.Members, v)
	return nil
}

// Element is one named enum value.
type Element struct {
	Name  string
	Value string
	Descr string
}

// Enum is an enumerated data type.
type Enum struct {
	Name     string
	Descr    string
	Elements []Element
}

func (e Enum) DeclName() string { return e.Name }
func (Enum) DeclKind() Kind     { return KindEnum }
func (Enum) declaration()       {}

// AddElement appends an element; it needs a value and a unique name.
func (e *Enum) AddElement(el Element) error {
	if el.Name == "" {
		return invalid("empty element name in enum %q", e.Name)
	}
	if el.Value == "" {
		return invalid("enum element %q of %q must have a value", el.Name, e.Name)
	}
	for _, existing := range e.Elements {
		if existing.Name == el.Name {
			return duplicate("element of enum "+e.Name, el.Name)
		}
	}
	e.Elements = append(e.Elements, el)
	return nil
}

// Typedef is an alias of another type.
type Typedef struct {
	Name  string
	Descr string
	Type  Type
}

func (t Typedef) DeclName() string { return t.Name }
func (Typedef) DeclKind() Kind     { return KindTypedef }
func (Typedef) declaration()       {}

// Subrange restricts an integer type to Min..Max.
type Subrange struct {
	Name  string
	Descr string
	Type  string
	Min   int64
	Max   int64
}

func (s Subrange) DeclName() string { return s.Name }
func (Subrange) DeclKind() Kind     { return KindSubrange }
func (Subrange) declaration()       {}
