package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// FromWatermill copies Watermill metadata.
func FromWatermill(md message.Metadata) Metadata {
	if len(md) == 0 {
		return Metadata{}
	}

	result := make(Metadata, len(md))
	for k, v := range md {
		result[k] = v
	}
	return result
}

// ToWatermill copies metadata into msg, keeping what msg already carries.
func ToWatermill(metadata Metadata, msg *message.Message) {
	for k, v := range metadata {
		msg.Metadata.Set(k, v)
	}
}
