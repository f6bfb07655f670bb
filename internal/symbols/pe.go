package symbols

import (
	"bytes"
	"debug/pe"
	"errors"
	"fmt"
)

var (
	// ErrNotPE is returned for files that are not PE images.
	ErrNotPE = errors.New("not a PE image")
	// ErrNotManaged is returned for native PE images.
	ErrNotManaged = errors.New("module has no CLI header")
)

// clrRuntimeHeader is IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR.
const clrRuntimeHeader = 14

// Image summarizes the PE headers of a module.
type Image struct {
	Machine string
	Managed bool
}

// InspectImage parses data as a PE image and reports whether it carries a
// CLI header.
func InspectImage(data []byte) (*Image, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPE, err)
	}
	defer f.Close()

	img := &Image{Machine: machineName(f.Machine)}
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		img.Managed = oh.NumberOfRvaAndSizes > clrRuntimeHeader && oh.DataDirectory[clrRuntimeHeader].VirtualAddress != 0
	case *pe.OptionalHeader64:
		img.Managed = oh.NumberOfRvaAndSizes > clrRuntimeHeader && oh.DataDirectory[clrRuntimeHeader].VirtualAddress != 0
	}
	return img, nil
}

func machineName(m uint16) string {
	switch m {
	case pe.IMAGE_FILE_MACHINE_I386:
		return "x86"
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return "x64"
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return "arm64"
	case pe.IMAGE_FILE_MACHINE_ARMNT:
		return "arm"
	default:
		return fmt.Sprintf("0x%04x", m)
	}
}

// symbolFormat recognizes portable and Windows PDB headers.
func symbolFormat(header []byte) string {
	switch {
	case bytes.HasPrefix(header, []byte("BSJB")):
		return "portable"
	case bytes.HasPrefix(header, []byte("Microsoft C/C++ MSF 7.00")):
		return "windows"
	default:
		return "unknown"
	}
}
