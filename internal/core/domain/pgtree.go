package domain

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// walkTree visits every message in a pg_query parse tree in pre-order
// (fields in declaration order, list elements in sequence). visit returns
// false to stop the walk; walkTree reports whether the walk ran to the end.
func walkTree(root proto.Message, visit func(proto.Message) bool) bool {
	if root == nil {
		return true
	}
	return walkMessage(root.ProtoReflect(), visit)
}

func walkMessage(m protoreflect.Message, visit func(proto.Message) bool) bool {
	if !m.IsValid() {
		return true
	}
	if !visit(m.Interface()) {
		return false
	}

	fields := m.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.Kind() != protoreflect.MessageKind || fd.IsMap() || !m.Has(fd) {
			continue
		}
		if fd.IsList() {
			list := m.Get(fd).List()
			for j := 0; j < list.Len(); j++ {
				if !walkMessage(list.Get(j).Message(), visit) {
					return false
				}
			}
			continue
		}
		if !walkMessage(m.Get(fd).Message(), visit) {
			return false
		}
	}
	return true
}
