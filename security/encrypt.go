package security

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/quillpdf/quill/object"
)

// Algorithm selects the cipher suite for newly encrypted documents.
type Algorithm int

const (
	// AlgoAES256 is revision 6 (AES-256-CBC), the default.
	AlgoAES256 Algorithm = iota
	// AlgoAES128 is revision 4 with AESV2 crypt filters.
	AlgoAES128
	// AlgoRC4_128 is revision 3 with 128-bit RC4, kept for
	// compatibility with old consumers.
	AlgoRC4_128
)

// Options configures write-side encryption.
type Options struct {
	UserPassword  string
	OwnerPassword string
	Permissions   Permissions
	Algorithm     Algorithm
	// NoMetadataEncryption leaves the XMP metadata stream in the
	// clear (EncryptMetadata false).
	NoMetadataEncryption bool
}

// NewEncrypter builds the Encrypt dictionary for opts and an
// already-authenticated handler that encrypts with the derived file
// key. fileID is the first element of the trailer ID array; random
// supplies key and salt material and defaults to crypto/rand.
func NewEncrypter(opts Options, fileID []byte, random io.Reader) (Handler, *object.Dict, error) {
	if random == nil {
		random = rand.Reader
	}
	owner := opts.OwnerPassword
	if owner == "" {
		owner = opts.UserPassword
	}
	switch opts.Algorithm {
	case AlgoAES256:
		return newR6Encrypter(opts, owner, random)
	case AlgoAES128, AlgoRC4_128:
		return newLegacyEncrypter(opts, owner, fileID, random)
	}
	return nil, nil, fmt.Errorf("unknown encryption algorithm %d", opts.Algorithm)
}

func newR6Encrypter(opts Options, owner string, random io.Reader) (Handler, *object.Dict, error) {
	userPwd, err := prepPassword(opts.UserPassword)
	if err != nil {
		return nil, nil, err
	}
	ownerPwd, err := prepPassword(owner)
	if err != nil {
		return nil, nil, err
	}

	fileKey := make([]byte, 32)
	salts := make([]byte, 32) // user validation+key, owner validation+key
	if _, err := io.ReadFull(random, fileKey); err != nil {
		return nil, nil, fmt.Errorf("%w: read file key: %v", ErrCrypto, err)
	}
	if _, err := io.ReadFull(random, salts); err != nil {
		return nil, nil, fmt.Errorf("%w: read salts: %v", ErrCrypto, err)
	}

	uEntry := concat(hashR6(userPwd, salts[0:8], nil), salts[0:16])
	ue, err := aesCBCNoPad(hashR6(userPwd, salts[8:16], nil), make([]byte, 16), fileKey, true)
	if err != nil {
		return nil, nil, err
	}
	oEntry := concat(hashR6(ownerPwd, salts[16:24], uEntry[:48]), salts[16:32])
	oe, err := aesCBCNoPad(hashR6(ownerPwd, salts[24:32], uEntry[:48]), make([]byte, 16), fileKey, true)
	if err != nil {
		return nil, nil, err
	}

	p := opts.Permissions.Bits()
	encMeta := !opts.NoMetadataEncryption
	permsBlock := make([]byte, 16)
	permsBlock[0] = byte(p)
	permsBlock[1] = byte(p >> 8)
	permsBlock[2] = byte(p >> 16)
	permsBlock[3] = byte(p >> 24)
	permsBlock[4], permsBlock[5], permsBlock[6], permsBlock[7] = 0xFF, 0xFF, 0xFF, 0xFF
	if encMeta {
		permsBlock[8] = 'T'
	} else {
		permsBlock[8] = 'F'
	}
	permsBlock[9], permsBlock[10], permsBlock[11] = 'a', 'd', 'b'
	if _, err := io.ReadFull(random, permsBlock[12:]); err != nil {
		return nil, nil, fmt.Errorf("%w: read perms block: %v", ErrCrypto, err)
	}
	perms, err := aesECBBlock(fileKey, permsBlock, true)
	if err != nil {
		return nil, nil, err
	}

	dict := object.NewDict()
	dict.Set("Filter", object.Name("Standard"))
	dict.Set("V", object.Integer(5))
	dict.Set("R", object.Integer(6))
	dict.Set("Length", object.Integer(256))
	dict.Set("O", object.String{Data: oEntry, Hex: true})
	dict.Set("U", object.String{Data: uEntry, Hex: true})
	dict.Set("OE", object.String{Data: oe, Hex: true})
	dict.Set("UE", object.String{Data: ue, Hex: true})
	dict.Set("P", object.Integer(p))
	dict.Set("Perms", object.String{Data: perms, Hex: true})
	if !encMeta {
		dict.Set("EncryptMetadata", object.Boolean(false))
	}
	dict.Set("CF", cryptFilterDict("AESV3", 32))
	dict.Set("StmF", object.Name("StdCF"))
	dict.Set("StrF", object.Name("StdCF"))

	h := &standardHandler{
		v:          5,
		r:          6,
		keyLen:     32,
		oEntry:     oEntry,
		uEntry:     uEntry,
		oe:         oe,
		ue:         ue,
		permsEntry: perms,
		p:          p,
		encMeta:    encMeta,
		strAlgo:    algoAES,
		stmAlgo:    algoAES,
		random:     random,
		fileKey:    fileKey,
		authed:     true,
	}
	return h, dict, nil
}

func newLegacyEncrypter(opts Options, owner string, fileID []byte, random io.Reader) (Handler, *object.Dict, error) {
	r := 3
	if opts.Algorithm == AlgoAES128 {
		r = 4
	}
	p := opts.Permissions.Bits()
	encMeta := !opts.NoMetadataEncryption

	oEntry := computeOwnerEntry([]byte(owner), []byte(opts.UserPassword), 16, r)
	fileKey := legacyFileKey([]byte(opts.UserPassword), oEntry, p, fileID, 16, r, encMeta)
	uEntry := computeUserEntry(fileKey, fileID, r)

	dict := object.NewDict()
	dict.Set("Filter", object.Name("Standard"))
	algo := algoRC4
	if opts.Algorithm == AlgoAES128 {
		algo = algoAES
		dict.Set("V", object.Integer(4))
		dict.Set("R", object.Integer(4))
		dict.Set("Length", object.Integer(128))
		dict.Set("CF", cryptFilterDict("AESV2", 16))
		dict.Set("StmF", object.Name("StdCF"))
		dict.Set("StrF", object.Name("StdCF"))
	} else {
		dict.Set("V", object.Integer(2))
		dict.Set("R", object.Integer(3))
		dict.Set("Length", object.Integer(128))
	}
	dict.Set("O", object.String{Data: oEntry, Hex: true})
	dict.Set("U", object.String{Data: uEntry, Hex: true})
	dict.Set("P", object.Integer(p))
	if r == 4 && !encMeta {
		dict.Set("EncryptMetadata", object.Boolean(false))
	}

	h := &standardHandler{
		v:       2,
		r:       r,
		keyLen:  16,
		oEntry:  oEntry,
		uEntry:  uEntry,
		p:       p,
		fileID:  fileID,
		encMeta: encMeta,
		strAlgo: algo,
		stmAlgo: algo,
		random:  random,
		fileKey: fileKey,
		authed:  true,
	}
	if r == 4 {
		h.v = 4
	}
	return h, dict, nil
}

func cryptFilterDict(cfm object.Name, keyBytes int) *object.Dict {
	std := object.NewDict()
	std.Set("Type", object.Name("CryptFilter"))
	std.Set("CFM", cfm)
	std.Set("AuthEvent", object.Name("DocOpen"))
	std.Set("Length", object.Integer(keyBytes))
	cf := object.NewDict()
	cf.Set("StdCF", std)
	return cf
}
