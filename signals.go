package shapepack

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
)

// Signals for serializer lifecycle events. Grounded on cereal/signals.go:
// only the facade emits them (the cache-miss signal included), never
// convert.Cache or the converter family itself.
var (
	SignalSerializerBuilt   = capitan.NewSignal("shapepack.serializer.built", "Serializer constructed")
	SignalCacheMiss         = capitan.NewSignal("shapepack.cache.miss", "Converter built for a shape not yet cached")
	SignalSerializeStart    = capitan.NewSignal("shapepack.serialize.start", "Serialize operation beginning")
	SignalSerializeComplete = capitan.NewSignal("shapepack.serialize.complete", "Serialize operation finished")
	SignalDeserializeStart  = capitan.NewSignal("shapepack.deserialize.start", "Deserialize operation beginning")
	SignalDeserializeComplete = capitan.NewSignal("shapepack.deserialize.complete", "Deserialize operation finished")
)

// Keys for typed event data.
var (
	KeyShapeName = capitan.NewStringKey("shape_name")
	KeySize      = capitan.NewIntKey("size")
	KeyDuration  = capitan.NewDurationKey("duration")
	KeyError     = capitan.NewErrorKey("error")
	KeyAsync     = capitan.NewBoolKey("async")
)

func emitSerializerBuilt(shapeName string) {
	capitan.Emit(context.Background(), SignalSerializerBuilt, KeyShapeName.Field(shapeName))
}

func emitCacheMiss(shapeName string) {
	capitan.Emit(context.Background(), SignalCacheMiss, KeyShapeName.Field(shapeName))
}

func emitSerializeStart(shapeName string, async bool) {
	capitan.Emit(context.Background(), SignalSerializeStart,
		KeyShapeName.Field(shapeName),
		KeyAsync.Field(async),
	)
}

func emitSerializeComplete(shapeName string, async bool, size int, d time.Duration, err error) {
	ctx := context.Background()
	fields := []capitan.Field{
		KeyShapeName.Field(shapeName),
		KeyAsync.Field(async),
		KeySize.Field(size),
		KeyDuration.Field(d),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalSerializeComplete, fields...)
	} else {
		capitan.Emit(ctx, SignalSerializeComplete, fields...)
	}
}

func emitDeserializeStart(shapeName string, async bool) {
	capitan.Emit(context.Background(), SignalDeserializeStart,
		KeyShapeName.Field(shapeName),
		KeyAsync.Field(async),
	)
}

func emitDeserializeComplete(shapeName string, async bool, size int, d time.Duration, err error) {
	ctx := context.Background()
	fields := []capitan.Field{
		KeyShapeName.Field(shapeName),
		KeyAsync.Field(async),
		KeySize.Field(size),
		KeyDuration.Field(d),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalDeserializeComplete, fields...)
	} else {
		capitan.Emit(ctx, SignalDeserializeComplete, fields...)
	}
}
