package typedb

// ParameterFormat distinguishes plain, *args and **kwargs parameters.
type ParameterFormat int

const (
	ParamNormal ParameterFormat = iota
	ParamList
	ParamDict
)

func (f ParameterFormat) String() string {
	switch f {
	case ParamList:
		return "*"
	case ParamDict:
		return "**"
	}
	return ""
}

func parseParameterFormat(s string) ParameterFormat {
	switch s {
	case "*":
		return ParamList
	case "**":
		return ParamDict
	}
	return ParamNormal
}

// Parameter is one declared parameter of an Overload.
type Parameter struct {
	Name         string
	Doc          string
	DefaultValue string
	Format       ParameterFormat
	types        *typeSlots
}

// Types are the declared types of the parameter, in resolution order.
func (p *Parameter) Types() []*Type { return p.types.resolved() }

// Overload is one signature of a Function.
type Overload struct {
	Doc        string
	ReturnDoc  string
	Parameters []*Parameter
	returns    *typeSlots
}

// ReturnTypes are the declared return types, in resolution order.
func (o *Overload) ReturnTypes() []*Type { return o.returns.resolved() }

// Function is a module-level function, or the callable view of a method.
type Function struct {
	name        string
	doc         string
	declaring   Container
	builtin     bool
	static      bool
	classMethod bool
	method      bool
	loc         Location
	hasLoc      bool
	overloads   []*Overload
}

func (f *Function) Kind() Kind                 { return KindFunction }
func (f *Function) Name() string               { return f.name }
func (f *Function) Doc() string                { return f.doc }
func (f *Function) Declaring() Container       { return f.declaring }
func (f *Function) IsBuiltin() bool            { return f.builtin }
func (f *Function) IsStatic() bool             { return f.static }
func (f *Function) IsClassMethod() bool        { return f.classMethod }
func (f *Function) Location() (Location, bool) { return f.loc, f.hasLoc }
func (f *Function) Overloads() []*Overload     { return f.overloads }

// IsMethod reports whether the first declared parameter was clipped.
func (f *Function) IsMethod() bool { return f.method }

// MethodDescriptor is a method declared on a type. Its Function view drops
// the receiver parameter from every overload.
type MethodDescriptor struct {
	fn *Function
}

func (m *MethodDescriptor) Kind() Kind                 { return KindMethod }
func (m *MethodDescriptor) Name() string               { return m.fn.name }
func (m *MethodDescriptor) Doc() string                { return m.fn.doc }
func (m *MethodDescriptor) Function() *Function        { return m.fn }
func (m *MethodDescriptor) Location() (Location, bool) { return m.fn.Location() }
