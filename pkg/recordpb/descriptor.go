package recordpb

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

const protoFile = "recordrelay/v1/record.proto"

// File_recordrelay_v1_record_proto describes RecordService for clients that
// resolve it through server reflection.
var File_recordrelay_v1_record_proto protoreflect.FileDescriptor

func init() {
	structName := "." + string((&structpb.Struct{}).ProtoReflect().Descriptor().FullName())

	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(protoFile),
		Package:    proto.String("recordrelay.v1"),
		Dependency: []string{structpb.File_google_protobuf_struct_proto.Path()},
		Syntax:     proto.String("proto3"),
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/openfga/recordrelay/pkg/recordpb"),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("RecordService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				{
					Name:            proto.String("ReadRecords"),
					InputType:       proto.String(structName),
					OutputType:      proto.String(structName),
					ServerStreaming: proto.Bool(true),
				},
				{
					Name:       proto.String("WriteRecords"),
					InputType:  proto.String(structName),
					OutputType: proto.String(structName),
				},
			},
		}},
	}

	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		panic(err)
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(err)
	}
	File_recordrelay_v1_record_proto = fd
}
