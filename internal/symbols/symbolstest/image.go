// Package symbolstest builds minimal module images for tests.
package symbolstest

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
)

// Image returns a PE32 image with no sections. A managed image carries a
// CLI header entry in data directory 14.
func Image(managed bool) []byte {
	var buf bytes.Buffer

	dos := make([]byte, 64)
	dos[0], dos[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(dos[0x3c:], 64)
	buf.Write(dos)
	buf.WriteString("PE\x00\x00")

	fh := pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_I386,
		SizeOfOptionalHeader: 224,
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_DLL,
	}
	_ = binary.Write(&buf, binary.LittleEndian, fh)

	oh := pe.OptionalHeader32{Magic: 0x10b, NumberOfRvaAndSizes: 16}
	if managed {
		oh.DataDirectory[14] = pe.DataDirectory{VirtualAddress: 0x2008, Size: 0x48}
	}
	_ = binary.Write(&buf, binary.LittleEndian, oh)
	return buf.Bytes()
}

// PortablePDB is the header of a portable PDB file.
var PortablePDB = []byte("BSJB\x01\x00\x01\x00\x00\x00\x00\x00")
