package network

import (
	jsoniter "github.com/json-iterator/go"
)

// json encodes request bodies, it is faster than encoding/json for larger variables.
var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals
