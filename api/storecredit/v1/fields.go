package storecreditv1

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

func field(message protoreflect.Message, name protoreflect.Name) protoreflect.FieldDescriptor {
	descriptor := message.Descriptor().Fields().ByName(name)
	if descriptor == nil {
		panic(fmt.Sprintf("storecreditv1: %s has no field %s", message.Descriptor().FullName(), name))
	}
	return descriptor
}

// String reads a string field.
func String(message protoreflect.Message, name protoreflect.Name) string {
	return message.Get(field(message, name)).String()
}

// Int64 reads an int64 or int32 field.
func Int64(message protoreflect.Message, name protoreflect.Name) int64 {
	return message.Get(field(message, name)).Int()
}

// Message reads a nested message field; an unset field reads as empty.
func Message(message protoreflect.Message, name protoreflect.Name) protoreflect.Message {
	return message.Get(field(message, name)).Message()
}

// List reads the messages of a repeated message field.
func List(message protoreflect.Message, name protoreflect.Name) []protoreflect.Message {
	list := message.Get(field(message, name)).List()
	items := make([]protoreflect.Message, 0, list.Len())
	for index := 0; index < list.Len(); index++ {
		items = append(items, list.Get(index).Message())
	}
	return items
}

func SetString(message protoreflect.Message, name protoreflect.Name, value string) {
	message.Set(field(message, name), protoreflect.ValueOfString(value))
}

// SetInt64 writes an int64 field. int32 fields take the truncated value.
func SetInt64(message protoreflect.Message, name protoreflect.Name, value int64) {
	descriptor := field(message, name)
	if descriptor.Kind() == protoreflect.Int32Kind {
		message.Set(descriptor, protoreflect.ValueOfInt32(int32(value)))
		return
	}
	message.Set(descriptor, protoreflect.ValueOfInt64(value))
}

func SetMessage(message protoreflect.Message, name protoreflect.Name, value *dynamicpb.Message) {
	message.Set(field(message, name), protoreflect.ValueOfMessage(value))
}

func AppendMessage(message protoreflect.Message, name protoreflect.Name, value *dynamicpb.Message) {
	message.Mutable(field(message, name)).List().Append(protoreflect.ValueOfMessage(value))
}
