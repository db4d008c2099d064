package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/xdg-go/stringprep"
)

// passwordPadding is the 32-byte pad defined for revisions 2-4.
var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	out := make([]byte, 32)
	n := copy(out, pwd)
	copy(out[n:], passwordPadding)
	return out
}

// prepPassword prepares a revision 6 password: SASLprep, then UTF-8
// truncation to 127 bytes. Preparation failures surface as
// ErrWeakPassword so callers can distinguish encoding problems from
// wrong passwords.
func prepPassword(password string) ([]byte, error) {
	prepped, err := stringprep.SASLprep.Prepare(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	b := []byte(prepped)
	if len(b) > 127 {
		return nil, fmt.Errorf("%w: prepared password is %d bytes, limit is 127", ErrWeakPassword, len(b))
	}
	return b, nil
}

// legacyFileKey implements the revision 2-4 key derivation: MD5 over
// the padded password, O entry, permission flags, and file ID, with 50
// extra iterations for revision 3 and up.
func legacyFileKey(pwd, oEntry []byte, p int32, fileID []byte, keyLen, r int, encMeta bool) []byte {
	if keyLen <= 0 {
		keyLen = 5
	}
	if keyLen > 16 {
		keyLen = 16
	}
	h := md5.New()
	h.Write(padPassword(pwd))
	h.Write(oEntry)
	var pBuf [4]byte
	binary.LittleEndian.PutUint32(pBuf[:], uint32(p))
	h.Write(pBuf[:])
	h.Write(fileID)
	if r >= 4 && !encMeta {
		h.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	key := h.Sum(nil)
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:keyLen])
			key = sum[:]
		}
	}
	return key[:keyLen]
}

// computeOwnerEntry implements Algorithm 3.3: the O value stored in
// the Encrypt dictionary for revisions 2-4.
func computeOwnerEntry(ownerPwd, userPwd []byte, keyLen, r int) []byte {
	key := ownerKey(ownerPwd, keyLen, r)
	val := padPassword(userPwd)
	if r == 2 {
		out, _ := rc4Apply(key, val)
		return out
	}
	for i := 0; i < 20; i++ {
		val, _ = rc4Apply(xorKey(key, byte(i)), val)
	}
	return val
}

// recoverUserPassword reverses computeOwnerEntry given the owner
// password, yielding the padded user password.
func recoverUserPassword(ownerPwd, oEntry []byte, keyLen, r int) []byte {
	key := ownerKey(ownerPwd, keyLen, r)
	val := append([]byte{}, oEntry...)
	if r == 2 {
		out, _ := rc4Apply(key, val)
		return out
	}
	for i := 19; i >= 0; i-- {
		val, _ = rc4Apply(xorKey(key, byte(i)), val)
	}
	return val
}

func ownerKey(ownerPwd []byte, keyLen, r int) []byte {
	sum := md5.Sum(padPassword(ownerPwd))
	key := sum[:]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key)
			key = sum[:]
		}
	}
	if keyLen <= 0 || keyLen > 16 {
		keyLen = 16
	}
	if r == 2 {
		keyLen = 5
	}
	return key[:keyLen]
}

// computeUserEntry implements Algorithms 3.4 (r=2) and 3.5 (r>=3):
// the U value stored in the Encrypt dictionary.
func computeUserEntry(fileKey, fileID []byte, r int) []byte {
	if r == 2 {
		out, _ := rc4Apply(fileKey, passwordPadding)
		return out
	}
	h := md5.New()
	h.Write(passwordPadding)
	h.Write(fileID)
	val := h.Sum(nil)
	val, _ = rc4Apply(fileKey, val)
	for i := 1; i < 20; i++ {
		val, _ = rc4Apply(xorKey(fileKey, byte(i)), val)
	}
	// Pad to 32 bytes; ISO 32000 leaves the tail arbitrary.
	out := make([]byte, 32)
	copy(out, val)
	return out
}

func checkUserEntry(fileKey, uEntry, fileID []byte, r int) bool {
	if len(uEntry) < 16 {
		return false
	}
	want := computeUserEntry(fileKey, fileID, r)
	return bytes.Equal(want[:16], uEntry[:16])
}

// hashR6 implements Algorithm 2.B from ISO 32000-2: the iterated
// SHA-2/AES hash used by revision 6 password verification and key
// derivation. extra is empty for user entries and the first 48 bytes
// of U for owner entries.
func hashR6(pwd, salt, extra []byte) []byte {
	sum := sha256.Sum256(concat(pwd, salt, extra))
	k := sum[:]
	for round := 0; ; round++ {
		single := concat(pwd, k, extra)
		k1 := make([]byte, 0, len(single)*64)
		for i := 0; i < 64; i++ {
			k1 = append(k1, single...)
		}
		block, err := aes.NewCipher(k[:16])
		if err != nil {
			return k[:32]
		}
		e := make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)

		mod := 0
		for _, b := range e[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			s := sha256.Sum256(e)
			k = s[:]
		case 1:
			s := sha512.Sum384(e)
			k = s[:]
		default:
			s := sha512.Sum512(e)
			k = s[:]
		}
		if round >= 63 && int(e[len(e)-1]) <= round-31 {
			break
		}
	}
	return k[:32]
}

// verifyR6User checks pwd against the U entry and, on success,
// decrypts the file key from UE.
func verifyR6User(pwd, uEntry, ue []byte) ([]byte, bool) {
	validationSalt := uEntry[32:40]
	keySalt := uEntry[40:48]
	if !bytes.Equal(hashR6(pwd, validationSalt, nil), uEntry[:32]) {
		return nil, false
	}
	ikey := hashR6(pwd, keySalt, nil)
	fileKey, err := aesCBCNoPad(ikey, make([]byte, 16), ue[:32], false)
	if err != nil {
		return nil, false
	}
	return fileKey, true
}

// verifyR6Owner checks pwd against the O entry, which additionally
// covers the first 48 bytes of U.
func verifyR6Owner(pwd, oEntry, oe, uEntry []byte) ([]byte, bool) {
	validationSalt := oEntry[32:40]
	keySalt := oEntry[40:48]
	if !bytes.Equal(hashR6(pwd, validationSalt, uEntry[:48]), oEntry[:32]) {
		return nil, false
	}
	ikey := hashR6(pwd, keySalt, uEntry[:48])
	fileKey, err := aesCBCNoPad(ikey, make([]byte, 16), oe[:32], false)
	if err != nil {
		return nil, false
	}
	return fileKey, true
}

// objectKey derives the per-object key. Revisions 5 and 6 use the file
// key directly; earlier revisions mix in the object number and
// generation through MD5, with an extra salt for AES.
func objectKey(fileKey []byte, num, gen, r int, aesAlgo bool) []byte {
	if r >= 5 {
		return fileKey
	}
	h := md5.New()
	h.Write(fileKey)
	h.Write([]byte{
		byte(num), byte(num >> 8), byte(num >> 16),
		byte(gen), byte(gen >> 8),
	})
	if aesAlgo {
		h.Write([]byte{0x73, 0x41, 0x6C, 0x54}) // "sAlT"
	}
	keyLen := len(fileKey) + 5
	if keyLen > 16 {
		keyLen = 16
	}
	return h.Sum(nil)[:keyLen]
}

func rc4Apply(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// aesEncrypt applies AES-CBC with PKCS#7 padding and a fresh IV drawn
// from random, prepended to the ciphertext.
func aesEncrypt(key, data []byte, random io.Reader) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(random, iv); err != nil {
		return nil, fmt.Errorf("%w: read iv: %v", ErrCrypto, err)
	}
	padLen := aes.BlockSize - len(data)%aes.BlockSize
	plain := append(append([]byte{}, data...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
	out := make([]byte, aes.BlockSize+len(plain))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], plain)
	return out, nil
}

func aesDecrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	if len(data) < aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrCrypto, len(data))
	}
	iv, ct := data[:aes.BlockSize], data[aes.BlockSize:]
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	if len(out) == 0 {
		return out, nil
	}
	pad := int(out[len(out)-1])
	if pad <= 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, fmt.Errorf("%w: invalid padding", ErrCrypto)
	}
	return out[:len(out)-pad], nil
}

// aesCBCNoPad runs AES-CBC without padding, used for the UE/OE and
// Perms entries which are block-aligned by construction.
func aesCBCNoPad(key, iv, data []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: data length %d not block aligned", ErrCrypto, len(data))
	}
	out := make([]byte, len(data))
	if encrypt {
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	} else {
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	}
	return out, nil
}

// aesECBBlock transforms a single 16-byte block, used for Perms.
func aesECBBlock(key, data []byte, encrypt bool) ([]byte, error) {
	if len(data) != aes.BlockSize {
		return nil, fmt.Errorf("%w: Perms block must be 16 bytes", ErrCrypto)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	out := make([]byte, aes.BlockSize)
	if encrypt {
		block.Encrypt(out, data)
	} else {
		block.Decrypt(out, data)
	}
	return out, nil
}

func xorKey(key []byte, x byte) []byte {
	out := make([]byte, len(key))
	for i, b := range key {
		out[i] = b ^ x
	}
	return out
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
