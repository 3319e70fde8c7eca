package fb

import "strconv"

type DataKind byte

const (
	DataKindRaw        DataKind = 0
	DataKindHTTPHeader DataKind = 1
)

var EnumNamesDataKind = map[DataKind]string{
	DataKindRaw:        "Raw",
	DataKindHTTPHeader: "HTTPHeader",
}

var EnumValuesDataKind = map[string]DataKind{
	"Raw":        DataKindRaw,
	"HTTPHeader": DataKindHTTPHeader,
}

func (v DataKind) String() string {
	if s, ok := EnumNamesDataKind[v]; ok {
		return s
	}
	return "DataKind(" + strconv.FormatInt(int64(v), 10) + ")"
}
