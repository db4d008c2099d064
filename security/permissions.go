package security

// Permissions is the decoded form of the P entry of the encryption
// dictionary. Enforcement is up to the consuming application; the
// engine only carries the bits through key derivation and the Perms
// entry.
type Permissions struct {
	Print             bool
	Modify            bool
	Copy              bool
	ModifyAnnotations bool
	FillForms         bool
	ExtractAccessible bool
	Assemble          bool
	PrintHighQuality  bool
}

// AllPermissions grants everything, the state of an unencrypted
// document.
func AllPermissions() Permissions {
	return Permissions{
		Print:             true,
		Modify:            true,
		Copy:              true,
		ModifyAnnotations: true,
		FillForms:         true,
		ExtractAccessible: true,
		Assemble:          true,
		PrintHighQuality:  true,
	}
}

const (
	permPrint             = 1 << 2
	permModify            = 1 << 3
	permCopy              = 1 << 4
	permModifyAnnotations = 1 << 5
	permFillForms         = 1 << 8
	permExtractAccessible = 1 << 9
	permAssemble          = 1 << 10
	permPrintHighQuality  = 1 << 11
)

func permissionsFromBits(p int32) Permissions {
	return Permissions{
		Print:             p&permPrint != 0,
		Modify:            p&permModify != 0,
		Copy:              p&permCopy != 0,
		ModifyAnnotations: p&permModifyAnnotations != 0,
		FillForms:         p&permFillForms != 0,
		ExtractAccessible: p&permExtractAccessible != 0,
		Assemble:          p&permAssemble != 0,
		PrintHighQuality:  p&permPrintHighQuality != 0,
	}
}

// Bits encodes the flags as the signed 32-bit P value. Reserved bits
// are set as required for the Standard handler.
func (p Permissions) Bits() int32 {
	// Bits 13-32 must be 1 and the two lowest reserved bits 0.
	v := int32(-4) &^ (permPrint | permModify | permCopy | permModifyAnnotations |
		permFillForms | permExtractAccessible | permAssemble | permPrintHighQuality)
	if p.Print {
		v |= permPrint
	}
	if p.Modify {
		v |= permModify
	}
	if p.Copy {
		v |= permCopy
	}
	if p.ModifyAnnotations {
		v |= permModifyAnnotations
	}
	if p.FillForms {
		v |= permFillForms
	}
	if p.ExtractAccessible {
		v |= permExtractAccessible
	}
	if p.Assemble {
		v |= permAssemble
	}
	if p.PrintHighQuality {
		v |= permPrintHighQuality
	}
	return v
}
