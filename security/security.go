// Package security implements the Standard security handler
// (password-based encryption) and the PKCS#7 signature container used
// for document signing.
package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/quillpdf/quill/object"
)

var (
	// ErrBadPassword is returned when neither the user nor the owner
	// password authenticates the document.
	ErrBadPassword = errors.New("invalid password")
	// ErrWeakPassword is returned when a password cannot be prepared
	// for key derivation (SASLprep failure or over-length input).
	ErrWeakPassword = errors.New("password cannot be encoded for key derivation")
	// ErrCrypto wraps failures of the underlying cipher or signature
	// primitives.
	ErrCrypto = errors.New("crypto backend failure")
)

// DataClass identifies the kind of payload being transformed.
type DataClass int

const (
	DataClassStream DataClass = iota
	DataClassString
)

// Handler transforms string and stream payloads for one document. A
// handler never changes object identities or structure, only payload
// bytes, so numbering and cross-reference construction are unaffected
// by whether encryption is active.
type Handler interface {
	IsEncrypted() bool
	// Authenticate derives the file key from the given password,
	// trying it first as the user and then as the owner password.
	Authenticate(password string) error
	Encrypt(num, gen int, data []byte, class DataClass) ([]byte, error)
	Decrypt(num, gen int, data []byte, class DataClass) ([]byte, error)
	Permissions() Permissions
	EncryptMetadata() bool
}

type cryptAlgo int

const (
	algoNone cryptAlgo = iota
	algoRC4
	algoAES
)

// HandlerBuilder assembles a Handler from a parsed Encrypt dictionary,
// used on the read path.
type HandlerBuilder struct {
	encryptDict *object.Dict
	fileID      []byte
	random      io.Reader
}

func (b *HandlerBuilder) WithEncryptDict(d *object.Dict) *HandlerBuilder {
	b.encryptDict = d
	return b
}

func (b *HandlerBuilder) WithFileID(id []byte) *HandlerBuilder { b.fileID = id; return b }

// WithRandom sets the source for initialization vectors. It defaults
// to crypto/rand and exists so serialization can be made reproducible
// in tests.
func (b *HandlerBuilder) WithRandom(r io.Reader) *HandlerBuilder { b.random = r; return b }

func (b *HandlerBuilder) Build() (Handler, error) {
	if b.encryptDict == nil {
		return NoopHandler(), nil
	}
	dict := b.encryptDict
	if filter, ok := dict.GetName("Filter"); ok && filter != "Standard" {
		return nil, fmt.Errorf("unsupported security handler %s", filter)
	}
	v := int64(1)
	if n, ok := dict.GetInt("V"); ok && n > 0 {
		v = n
	}
	r := int64(2)
	if n, ok := dict.GetInt("R"); ok {
		r = n
	}
	if v > 5 || r > 6 {
		return nil, fmt.Errorf("encryption V=%d R=%d not supported", v, r)
	}
	keyBits := int64(40)
	if v >= 5 {
		keyBits = 256
	} else if n, ok := dict.GetInt("Length"); ok && n > 0 {
		keyBits = n
	}
	if keyBits%8 != 0 {
		return nil, fmt.Errorf("encryption key length %d not a multiple of 8", keyBits)
	}

	h := &standardHandler{
		v:        int(v),
		r:        int(r),
		keyLen:   int(keyBits / 8),
		fileID:   b.fileID,
		random:   b.random,
		encMeta:  true,
		strAlgo:  algoRC4,
		stmAlgo:  algoRC4,
	}
	if h.random == nil {
		h.random = rand.Reader
	}
	if s, ok := dict.GetString("O"); ok {
		h.oEntry = s.Data
	}
	if s, ok := dict.GetString("U"); ok {
		h.uEntry = s.Data
	}
	if s, ok := dict.GetString("OE"); ok {
		h.oe = s.Data
	}
	if s, ok := dict.GetString("UE"); ok {
		h.ue = s.Data
	}
	if s, ok := dict.GetString("Perms"); ok {
		h.permsEntry = s.Data
	}
	if p, ok := dict.GetInt("P"); ok {
		h.p = int32(p)
	}
	if em, ok := dict.GetBool("EncryptMetadata"); ok {
		h.encMeta = em
	}

	if v >= 4 {
		h.strAlgo, h.stmAlgo = algoAES, algoAES
		filters, err := parseCryptFilters(dict)
		if err != nil {
			return nil, err
		}
		if a, ok := resolveCryptFilter(dict, "StrF", filters); ok {
			h.strAlgo = a
		}
		if a, ok := resolveCryptFilter(dict, "StmF", filters); ok {
			h.stmAlgo = a
		}
	}
	return h, nil
}

func parseCryptFilters(dict *object.Dict) (map[object.Name]cryptAlgo, error) {
	out := make(map[object.Name]cryptAlgo)
	cf, ok := dict.GetDict("CF")
	if !ok {
		return out, nil
	}
	for _, name := range cf.Keys() {
		entry, ok := cf.GetDict(name)
		if !ok {
			return nil, fmt.Errorf("crypt filter %s is not a dictionary", name)
		}
		cfm, _ := entry.GetName("CFM")
		switch cfm {
		case "V2":
			out[name] = algoRC4
		case "AESV2", "AESV3":
			out[name] = algoAES
		case "None":
			out[name] = algoNone
		default:
			return nil, fmt.Errorf("unsupported crypt filter method %s", cfm)
		}
	}
	return out, nil
}

func resolveCryptFilter(dict *object.Dict, key object.Name, filters map[object.Name]cryptAlgo) (cryptAlgo, bool) {
	name, ok := dict.GetName(key)
	if !ok {
		return 0, false
	}
	if name == "Identity" {
		return algoNone, true
	}
	if a, ok := filters[name]; ok {
		return a, true
	}
	return 0, false
}

// standardHandler implements the Standard security handler for
// revisions 2 through 6.
type standardHandler struct {
	fileKey    []byte
	v, r       int
	keyLen     int // in bytes, for R<=4
	oEntry     []byte
	uEntry     []byte
	oe, ue     []byte
	permsEntry []byte
	p          int32
	fileID     []byte
	encMeta    bool
	authed     bool
	strAlgo    cryptAlgo
	stmAlgo    cryptAlgo
	random     io.Reader
}

func (h *standardHandler) IsEncrypted() bool     { return true }
func (h *standardHandler) EncryptMetadata() bool { return h.encMeta }

func (h *standardHandler) Permissions() Permissions { return permissionsFromBits(h.p) }

func (h *standardHandler) Authenticate(password string) error {
	if h.r >= 5 {
		return h.authenticateR6(password)
	}
	return h.authenticateLegacy(password)
}

func (h *standardHandler) authenticateLegacy(password string) error {
	// Try as user password.
	key := legacyFileKey([]byte(password), h.oEntry, h.p, h.fileID, h.keyLen, h.r, h.encMeta)
	if checkUserEntry(key, h.uEntry, h.fileID, h.r) {
		h.fileKey = key
		h.authed = true
		return nil
	}
	// Try as owner password: recover the user password from O, then
	// authenticate with it.
	userPwd := recoverUserPassword([]byte(password), h.oEntry, h.keyLen, h.r)
	key = legacyFileKey(userPwd, h.oEntry, h.p, h.fileID, h.keyLen, h.r, h.encMeta)
	if checkUserEntry(key, h.uEntry, h.fileID, h.r) {
		h.fileKey = key
		h.authed = true
		return nil
	}
	return ErrBadPassword
}

func (h *standardHandler) authenticateR6(password string) error {
	pwd, err := prepPassword(password)
	if err != nil {
		return err
	}
	if len(h.uEntry) >= 48 && len(h.ue) >= 32 {
		if key, ok := verifyR6User(pwd, h.uEntry, h.ue); ok {
			h.fileKey = key
			h.authed = true
			return nil
		}
	}
	if len(h.oEntry) >= 48 && len(h.oe) >= 32 && len(h.uEntry) >= 48 {
		if key, ok := verifyR6Owner(pwd, h.oEntry, h.oe, h.uEntry); ok {
			h.fileKey = key
			h.authed = true
			return nil
		}
	}
	return ErrBadPassword
}

func (h *standardHandler) algoFor(class DataClass) cryptAlgo {
	if class == DataClassString {
		return h.strAlgo
	}
	return h.stmAlgo
}

func (h *standardHandler) Encrypt(num, gen int, data []byte, class DataClass) ([]byte, error) {
	if !h.authed {
		if err := h.Authenticate(""); err != nil {
			return nil, err
		}
	}
	algo := h.algoFor(class)
	if algo == algoNone || len(data) == 0 {
		return data, nil
	}
	key := objectKey(h.fileKey, num, gen, h.r, algo == algoAES)
	if algo == algoAES {
		return aesEncrypt(key, data, h.random)
	}
	return rc4Apply(key, data)
}

func (h *standardHandler) Decrypt(num, gen int, data []byte, class DataClass) ([]byte, error) {
	if !h.authed {
		if err := h.Authenticate(""); err != nil {
			return nil, err
		}
	}
	algo := h.algoFor(class)
	if algo == algoNone || len(data) == 0 {
		return data, nil
	}
	key := objectKey(h.fileKey, num, gen, h.r, algo == algoAES)
	if algo == algoAES {
		return aesDecrypt(key, data)
	}
	return rc4Apply(key, data)
}

type noopHandler struct{}

func (noopHandler) IsEncrypted() bool            { return false }
func (noopHandler) Authenticate(string) error    { return nil }
func (noopHandler) EncryptMetadata() bool        { return false }
func (noopHandler) Permissions() Permissions     { return AllPermissions() }
func (noopHandler) Encrypt(_, _ int, data []byte, _ DataClass) ([]byte, error) {
	return data, nil
}
func (noopHandler) Decrypt(_, _ int, data []byte, _ DataClass) ([]byte, error) {
	return data, nil
}

// NoopHandler returns a pass-through handler for unencrypted
// documents.
func NoopHandler() Handler { return noopHandler{} }
