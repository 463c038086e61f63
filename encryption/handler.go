package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"errors"
	"fmt"

	"github.com/vellumpdf/vellum/core"
)

var (
	// ErrEncryptionRequired reports a document that cannot be opened
	// without a password.
	ErrEncryptionRequired = errors.New("document is encrypted and requires a password")

	// ErrAuthenticationFailed reports a password that matches neither
	// the user nor the owner credential.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrUnsupportedHandler reports an /Encrypt dictionary this package
	// cannot service, such as a non-Standard /Filter or an unknown
	// crypt filter method.
	ErrUnsupportedHandler = errors.New("unsupported security handler")
)

// CryptMethod identifies the cipher a crypt filter applies.
type CryptMethod int

const (
	// MethodIdentity passes data through unchanged.
	MethodIdentity CryptMethod = iota
	// MethodRC4 applies RC4 with a per-object key.
	MethodRC4
	// MethodAESV2 applies AES-128-CBC with a per-object key and a
	// 16-byte IV prefix on each payload.
	MethodAESV2
	// MethodAESV3 applies AES-256-CBC with the file key directly.
	MethodAESV3
)

// Handler implements the Standard security handler for encryption
// revisions 2 through 6. Authenticate must succeed before any of the
// Decrypt or Encrypt methods are used.
type Handler struct {
	version  int
	revision int
	keyLen   int

	ownerValue []byte
	userValue  []byte
	ownerKey   []byte // /OE, revision 5+
	userKey    []byte // /UE, revision 5+
	perms      []byte // /Perms, revision 5+

	permissions     uint32
	fileID          []byte
	encryptMetadata bool

	streamMethod CryptMethod
	stringMethod CryptMethod

	fileKey       []byte
	authenticated bool
}

// ParseEncryptDict builds a Handler from a trailer /Encrypt dictionary
// and the raw bytes of the first /ID array element. Only the Standard
// handler is supported; anything else returns ErrUnsupportedHandler.
func ParseEncryptDict(dict core.Dict, fileID []byte) (*Handler, error) {
	filter, ok := dict.GetName("Filter")
	if !ok || filter != "Standard" {
		return nil, fmt.Errorf("%w: filter %q", ErrUnsupportedHandler, filter)
	}

	h := &Handler{
		version:         1,
		revision:        2,
		keyLen:          5,
		fileID:          fileID,
		encryptMetadata: true,
		streamMethod:    MethodRC4,
		stringMethod:    MethodRC4,
	}

	if v, ok := dict.GetInt("V"); ok {
		h.version = int(v)
	}
	if r, ok := dict.GetInt("R"); ok {
		h.revision = int(r)
	}
	switch h.version {
	case 1:
		h.keyLen = 5
	case 2, 4:
		h.keyLen = 5
		if n, ok := dict.GetInt("Length"); ok {
			if n%8 != 0 || n < 40 || n > 128 {
				return nil, fmt.Errorf("%w: key length %d", ErrUnsupportedHandler, n)
			}
			h.keyLen = int(n) / 8
		}
	case 5:
		h.keyLen = 32
	default:
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedHandler, h.version)
	}
	if h.revision < 2 || h.revision > 6 {
		return nil, fmt.Errorf("%w: revision %d", ErrUnsupportedHandler, h.revision)
	}

	o, ok := dict.GetString("O")
	if !ok {
		return nil, fmt.Errorf("missing O entry in encryption dictionary")
	}
	u, ok := dict.GetString("U")
	if !ok {
		return nil, fmt.Errorf("missing U entry in encryption dictionary")
	}
	h.ownerValue = []byte(o)
	h.userValue = []byte(u)

	p, ok := dict.GetInt("P")
	if !ok {
		return nil, fmt.Errorf("missing P entry in encryption dictionary")
	}
	h.permissions = uint32(int32(p))

	if h.revision >= 5 {
		if len(h.ownerValue) < 48 || len(h.userValue) < 48 {
			return nil, fmt.Errorf("O and U must hold at least 48 bytes for revision %d", h.revision)
		}
		oe, ok := dict.GetString("OE")
		if !ok {
			return nil, fmt.Errorf("missing OE entry in encryption dictionary")
		}
		ue, ok := dict.GetString("UE")
		if !ok {
			return nil, fmt.Errorf("missing UE entry in encryption dictionary")
		}
		h.ownerKey = []byte(oe)
		h.userKey = []byte(ue)
		if perms, ok := dict.GetString("Perms"); ok {
			h.perms = []byte(perms)
		}
	}

	if em, ok := dict.GetBool("EncryptMetadata"); ok {
		h.encryptMetadata = bool(em)
	}

	if h.version >= 4 {
		if err := h.parseCryptFilters(dict); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// parseCryptFilters resolves the /StmF and /StrF filter names against the
// /CF dictionary. An absent name selects Identity.
func (h *Handler) parseCryptFilters(dict core.Dict) error {
	cf, _ := dict.GetDict("CF")

	lookup := func(key string) (CryptMethod, error) {
		name, ok := dict.GetName(key)
		if !ok || name == "Identity" {
			return MethodIdentity, nil
		}
		filter, ok := cf.GetDict(string(name))
		if !ok {
			return MethodIdentity, fmt.Errorf("%w: crypt filter %s not defined", ErrUnsupportedHandler, name)
		}
		cfm, _ := filter.GetName("CFM")
		switch cfm {
		case "V2":
			return MethodRC4, nil
		case "AESV2":
			return MethodAESV2, nil
		case "AESV3":
			return MethodAESV3, nil
		case "None", "Identity":
			return MethodIdentity, nil
		default:
			return MethodIdentity, fmt.Errorf("%w: crypt filter method %s", ErrUnsupportedHandler, cfm)
		}
	}

	var err error
	if h.streamMethod, err = lookup("StmF"); err != nil {
		return err
	}
	if h.stringMethod, err = lookup("StrF"); err != nil {
		return err
	}
	return nil
}

// Revision reports the security handler revision in effect.
func (h *Handler) Revision() int { return h.revision }

// Permissions reports the raw /P permission bits.
func (h *Handler) Permissions() uint32 { return h.permissions }

// EncryptMetadata reports whether document metadata streams are
// encrypted.
func (h *Handler) EncryptMetadata() bool { return h.encryptMetadata }

// Authenticated reports whether a password has been verified.
func (h *Handler) Authenticated() bool { return h.authenticated }

// FileKey returns the derived file encryption key, or nil before
// authentication.
func (h *Handler) FileKey() []byte {
	if !h.authenticated {
		return nil
	}
	return h.fileKey
}

// Authenticate verifies a password, trying it as the user password first
// and as the owner password second, and derives the file key on success.
// An empty password is valid for documents that carry no user password.
func (h *Handler) Authenticate(password []byte) error {
	if h.revision >= 5 {
		return h.authenticateV5(password)
	}
	return h.authenticateLegacy(password)
}

func (h *Handler) authenticateLegacy(password []byte) error {
	key := ComputeFileKey(password, h.ownerValue, h.permissions, h.fileID, h.revision, h.keyLen, h.encryptMetadata)
	if h.checkUserValue(key) {
		h.fileKey = key
		h.authenticated = true
		return nil
	}

	// Try the password as the owner password: decrypting /O with it
	// yields the padded user password, which must then validate. The
	// recovered password is exactly 32 bytes, so repadding is a no-op.
	userPwd := userPasswordFromOwner(password, h.ownerValue, h.revision, h.keyLen)
	key = ComputeFileKey(userPwd, h.ownerValue, h.permissions, h.fileID, h.revision, h.keyLen, h.encryptMetadata)
	if h.checkUserValue(key) {
		h.fileKey = key
		h.authenticated = true
		return nil
	}

	return ErrAuthenticationFailed
}

// checkUserValue recomputes /U for a candidate key and compares it with
// the stored value. Revision 3 and later only define the first 16 bytes.
func (h *Handler) checkUserValue(key []byte) bool {
	computed := ComputeUserValue(key, h.fileID, h.revision)
	if h.revision == 2 {
		return bytes.Equal(computed, h.userValue)
	}
	if len(h.userValue) < 16 {
		return false
	}
	return bytes.Equal(computed[:16], h.userValue[:16])
}

func (h *Handler) authenticateV5(password []byte) error {
	if len(password) > 127 {
		password = password[:127]
	}
	u48 := h.userValue[:48]
	o48 := h.ownerValue[:48]

	// User password: hash over the validation salt must reproduce the
	// first 32 bytes of /U; the key salt then unwraps /UE.
	valSalt, keySalt := u48[32:40], u48[40:48]
	if bytes.Equal(HardenedHash(password, valSalt, nil, h.revision), u48[:32]) {
		ikey := HardenedHash(password, keySalt, nil, h.revision)
		h.fileKey = aesCBCNoPadDecrypt(ikey, h.userKey[:32])
		if h.fileKey == nil {
			return ErrAuthenticationFailed
		}
		return h.finishV5()
	}

	// Owner password: the hash additionally covers the 48-byte /U value
	// and the key salt unwraps /OE.
	valSalt, keySalt = o48[32:40], o48[40:48]
	if bytes.Equal(HardenedHash(password, valSalt, u48, h.revision), o48[:32]) {
		ikey := HardenedHash(password, keySalt, u48, h.revision)
		h.fileKey = aesCBCNoPadDecrypt(ikey, h.ownerKey[:32])
		if h.fileKey == nil {
			return ErrAuthenticationFailed
		}
		return h.finishV5()
	}

	return ErrAuthenticationFailed
}

// finishV5 cross-checks the unwrapped file key against /Perms when
// present. The decrypted block carries the permission bits and the
// literal marker "adb".
func (h *Handler) finishV5() error {
	if len(h.perms) >= 16 {
		block, err := aes.NewCipher(h.fileKey)
		if err != nil {
			return ErrAuthenticationFailed
		}
		decrypted := make([]byte, 16)
		block.Decrypt(decrypted, h.perms[:16])
		if !bytes.Equal(decrypted[9:12], []byte("adb")) {
			h.fileKey = nil
			return ErrAuthenticationFailed
		}
	}
	h.authenticated = true
	return nil
}

// objectKey derives the per-object key for revisions 2 to 4: MD5 over the
// file key, the low 3 bytes of the object number and the low 2 bytes of
// the generation, with the AES salt appended for AESV2, truncated to
// keyLen+5 bytes capped at 16. Revision 5 and later use the file key
// directly.
func (h *Handler) objectKey(num, gen int, method CryptMethod) []byte {
	if h.revision >= 5 {
		return h.fileKey
	}

	d := md5.New()
	d.Write(h.fileKey)
	d.Write([]byte{byte(num), byte(num >> 8), byte(num >> 16), byte(gen), byte(gen >> 8)})
	if method == MethodAESV2 {
		d.Write([]byte{0x73, 0x41, 0x6C, 0x54}) // "sAlT"
	}
	key := d.Sum(nil)

	n := len(h.fileKey) + 5
	if n > 16 {
		n = 16
	}
	return key[:n]
}

// DecryptString decrypts string data found in the object numbered
// num/gen.
func (h *Handler) DecryptString(data []byte, num, gen int) ([]byte, error) {
	return h.apply(data, num, gen, h.stringMethod, false)
}

// EncryptString is the inverse of DecryptString.
func (h *Handler) EncryptString(data []byte, num, gen int) ([]byte, error) {
	return h.apply(data, num, gen, h.stringMethod, true)
}

// DecryptStream decrypts stream data owned by the object numbered
// num/gen.
func (h *Handler) DecryptStream(data []byte, num, gen int) ([]byte, error) {
	return h.apply(data, num, gen, h.streamMethod, false)
}

// EncryptStream is the inverse of DecryptStream.
func (h *Handler) EncryptStream(data []byte, num, gen int) ([]byte, error) {
	return h.apply(data, num, gen, h.streamMethod, true)
}

func (h *Handler) apply(data []byte, num, gen int, method CryptMethod, encrypt bool) ([]byte, error) {
	if !h.authenticated {
		return nil, ErrEncryptionRequired
	}
	switch method {
	case MethodIdentity:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case MethodRC4:
		out := make([]byte, len(data))
		copy(out, data)
		rc4Apply(h.objectKey(num, gen, method), out)
		return out, nil
	case MethodAESV2, MethodAESV3:
		key := h.objectKey(num, gen, method)
		if encrypt {
			return aesEncryptPayload(key, data)
		}
		return aesDecryptPayload(key, data)
	default:
		return nil, fmt.Errorf("%w: crypt method %d", ErrUnsupportedHandler, method)
	}
}

// aesDecryptPayload decrypts an AES payload whose first 16 bytes are the
// IV and strips PKCS#7 padding. Malformed padding is tolerated by
// returning the unpadded plaintext.
func aesDecryptPayload(key, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return nil, fmt.Errorf("AES payload shorter than one block: %d bytes", len(data))
	}
	iv, body := data[:aes.BlockSize], data[aes.BlockSize:]
	if len(body)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("AES payload length %d is not block aligned", len(body))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(body))
	if len(body) > 0 {
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	}
	if len(out) == 0 {
		return out, nil
	}
	pad := int(out[len(out)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(out) {
		return out, nil
	}
	return out[:len(out)-pad], nil
}

// aesEncryptPayload pads the plaintext with PKCS#7 and encrypts it with
// a zero IV prefixed to the output. Decryption accepts any IV, and the
// zero IV keeps encrypted fixtures deterministic.
func aesEncryptPayload(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	pad := aes.BlockSize - len(data)%aes.BlockSize
	padded := make([]byte, len(data)+pad)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(pad)
	}
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}
