package vulkan

import (
	"embed"

	"github.com/cockroachdb/errors"
)

//go:generate glslc shaders/quad.vert -o shaders/vert.spv
//go:generate glslc shaders/quad.frag -o shaders/frag.spv

//go:embed shaders/*.spv
var shaderFS embed.FS

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}

// readShader loads an embedded SPIR-V module as words.
func readShader(name string) ([]uint32, error) {
	code, err := shaderFS.ReadFile("shaders/" + name)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", name)
	}

	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Newf("shader %s is %d bytes, not a SPIR-V module", name, len(code))
	}

	return bytesToBytecode(code), nil
}
