package typedb

import "github.com/jward/typedb/internal/version"

// BuiltinTypeID identifies the canonical primitive types held by the builtin
// module. Types declared anywhere else are IDUnknown.
type BuiltinTypeID int

const (
	IDUnknown BuiltinTypeID = iota
	IDObject
	IDType
	IDNoneType
	IDBool
	IDInt
	IDLong
	IDFloat
	IDComplex
	IDTuple
	IDList
	IDDict
	IDSet
	IDFrozenSet
	IDStr
	IDBytes
	IDUnicode
	IDModuleType
	IDFunction
	IDBuiltinFunction
	IDBuiltinMethodDescriptor
	IDGenerator
	IDEllipsis
	IDProperty
	IDClassMethod
	IDStaticMethod
	IDDictKeys
	IDDictValues
	IDDictItems
	IDListIterator
	IDTupleIterator
	IDSetIterator
	IDStrIterator
	IDBytesIterator
	IDUnicodeIterator
	IDCallableIterator
)

var typeIDNames = map[BuiltinTypeID]string{
	IDUnknown:                 "Unknown",
	IDObject:                  "Object",
	IDType:                    "Type",
	IDNoneType:                "NoneType",
	IDBool:                    "Bool",
	IDInt:                     "Int",
	IDLong:                    "Long",
	IDFloat:                   "Float",
	IDComplex:                 "Complex",
	IDTuple:                   "Tuple",
	IDList:                    "List",
	IDDict:                    "Dict",
	IDSet:                     "Set",
	IDFrozenSet:               "FrozenSet",
	IDStr:                     "Str",
	IDBytes:                   "Bytes",
	IDUnicode:                 "Unicode",
	IDModuleType:              "Module",
	IDFunction:                "Function",
	IDBuiltinFunction:         "BuiltinFunction",
	IDBuiltinMethodDescriptor: "BuiltinMethodDescriptor",
	IDGenerator:               "Generator",
	IDEllipsis:                "Ellipsis",
	IDProperty:                "Property",
	IDClassMethod:             "ClassMethod",
	IDStaticMethod:            "StaticMethod",
	IDDictKeys:                "DictKeys",
	IDDictValues:              "DictValues",
	IDDictItems:               "DictItems",
	IDListIterator:            "ListIterator",
	IDTupleIterator:           "TupleIterator",
	IDSetIterator:             "SetIterator",
	IDStrIterator:             "StrIterator",
	IDBytesIterator:           "BytesIterator",
	IDUnicodeIterator:         "UnicodeIterator",
	IDCallableIterator:        "CallableIterator",
}

func (id BuiltinTypeID) String() string {
	if s, ok := typeIDNames[id]; ok {
		return s
	}
	return "Unknown"
}

// ParseBuiltinTypeID maps an identifier name ("List", "NoneType") back to
// its BuiltinTypeID.
func ParseBuiltinTypeID(s string) (BuiltinTypeID, bool) {
	for id, name := range typeIDNames {
		if name == s {
			return id, true
		}
	}
	return IDUnknown, false
}

// is3x treats an absent target as 3.x.
func is3x(v version.Version, ok bool) bool {
	return !ok || v.Major >= 3
}

// BuiltinModuleName is the builtin module's name for the dialect.
func BuiltinModuleName(v version.Version, ok bool) string {
	if is3x(v, ok) {
		return "builtins"
	}
	return "__builtin__"
}

// builtinTypeIDFor maps a type declared in the builtin module to its id.
// IDStr and IDStrIterator are never returned: they are dialect-dependent
// aliases and resolve to IDUnicode or IDBytes.
func builtinTypeIDFor(name string, py3 bool) BuiltinTypeID {
	switch name {
	case "list":
		return IDList
	case "tuple":
		return IDTuple
	case "float":
		return IDFloat
	case "int":
		return IDInt
	case "complex":
		return IDComplex
	case "dict":
		return IDDict
	case "bool":
		return IDBool
	case "generator":
		return IDGenerator
	case "ModuleType":
		return IDModuleType
	case "function":
		return IDFunction
	case "set":
		return IDSet
	case "type":
		return IDType
	case "object":
		return IDObject
	case "long":
		return IDLong
	case "str":
		if py3 {
			return IDUnicode
		}
		return IDBytes
	case "unicode":
		return IDUnicode
	case "bytes":
		return IDBytes
	case "builtin_function":
		return IDBuiltinFunction
	case "builtin_method_descriptor":
		return IDBuiltinMethodDescriptor
	case "NoneType":
		return IDNoneType
	case "ellipsis":
		return IDEllipsis
	case "dict_keys":
		return IDDictKeys
	case "dict_values":
		return IDDictValues
	case "dict_items":
		return IDDictItems
	case "list_iterator":
		return IDListIterator
	case "tuple_iterator":
		return IDTupleIterator
	case "set_iterator":
		return IDSetIterator
	case "str_iterator":
		if py3 {
			return IDUnicodeIterator
		}
		return IDBytesIterator
	case "unicode_iterator":
		return IDUnicodeIterator
	case "bytes_iterator":
		return IDBytesIterator
	case "callable_iterator":
		return IDCallableIterator
	case "property":
		return IDProperty
	case "classmethod":
		return IDClassMethod
	case "staticmethod":
		return IDStaticMethod
	case "frozenset":
		return IDFrozenSet
	}
	return IDUnknown
}

// builtinTypeName is the inverse of builtinTypeIDFor: the name under which
// the builtin module declares the type in the given dialect.
func builtinTypeName(id BuiltinTypeID, py3 bool) string {
	pick := func(three, two string) string {
		if py3 {
			return three
		}
		return two
	}
	switch id {
	case IDObject:
		return "object"
	case IDType:
		return "type"
	case IDNoneType:
		return "NoneType"
	case IDBool:
		return "bool"
	case IDInt:
		return "int"
	case IDLong:
		return pick("int", "long")
	case IDFloat:
		return "float"
	case IDComplex:
		return "complex"
	case IDTuple:
		return "tuple"
	case IDList:
		return "list"
	case IDDict:
		return "dict"
	case IDSet:
		return "set"
	case IDFrozenSet:
		return "frozenset"
	case IDStr:
		return "str"
	case IDBytes:
		return pick("bytes", "str")
	case IDUnicode:
		return pick("str", "unicode")
	case IDModuleType:
		return "ModuleType"
	case IDFunction:
		return "function"
	case IDBuiltinFunction:
		return "builtin_function"
	case IDBuiltinMethodDescriptor:
		return "builtin_method_descriptor"
	case IDGenerator:
		return "generator"
	case IDEllipsis:
		return "ellipsis"
	case IDProperty:
		return "property"
	case IDClassMethod:
		return "classmethod"
	case IDStaticMethod:
		return "staticmethod"
	case IDDictKeys:
		return "dict_keys"
	case IDDictValues:
		return "dict_values"
	case IDDictItems:
		return "dict_items"
	case IDListIterator:
		return "list_iterator"
	case IDTupleIterator:
		return "tuple_iterator"
	case IDSetIterator:
		return "set_iterator"
	case IDStrIterator:
		return "str_iterator"
	case IDBytesIterator:
		return pick("bytes_iterator", "str_iterator")
	case IDUnicodeIterator:
		return pick("str_iterator", "unicode_iterator")
	case IDCallableIterator:
		return "callable_iterator"
	}
	return ""
}
