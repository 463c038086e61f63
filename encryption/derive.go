package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
)

// passwordPad is the 32-byte padding string appended to passwords in the
// legacy (revision 2 to 4) algorithms.
var passwordPad = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// padPassword truncates or pads a password to exactly 32 bytes.
func padPassword(password []byte) []byte {
	out := make([]byte, 32)
	n := copy(out, password)
	copy(out[n:], passwordPad)
	return out
}

// ComputeFileKey derives the file encryption key from a password for
// revisions 2 to 4 (Algorithm 2): MD5 over the padded password, /O, the
// little-endian permission bits and the first /ID string, iterated 50
// times for revision 3 and later, truncated to keyLen bytes.
func ComputeFileKey(password, ownerValue []byte, permissions uint32, fileID []byte, revision, keyLen int, encryptMetadata bool) []byte {
	h := md5.New()
	h.Write(padPassword(password))
	h.Write(ownerValue)
	h.Write([]byte{
		byte(permissions),
		byte(permissions >> 8),
		byte(permissions >> 16),
		byte(permissions >> 24),
	})
	h.Write(fileID)
	if revision >= 4 && !encryptMetadata {
		h.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	key := h.Sum(nil)

	if revision >= 3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:keyLen])
			key = sum[:]
		}
		return key[:keyLen]
	}
	return key[:5]
}

// ComputeOwnerValue computes the /O entry from the owner and user
// passwords (Algorithm 3). The padded user password is RC4-encrypted with
// a key hashed from the owner password; revision 3 and later add 19
// passes with XOR-varied keys.
func ComputeOwnerValue(ownerPassword, userPassword []byte, revision, keyLen int) []byte {
	if len(ownerPassword) == 0 {
		ownerPassword = userPassword
	}

	sum := md5.Sum(padPassword(ownerPassword))
	key := sum[:]
	if revision >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key)
			key = sum[:]
		}
		key = key[:keyLen]
	} else {
		key = key[:5]
	}

	out := padPassword(userPassword)
	rc4Apply(key, out)
	if revision >= 3 {
		for i := 1; i <= 19; i++ {
			rc4Apply(xorKey(key, byte(i)), out)
		}
	}
	return out
}

// userPasswordFromOwner inverts Algorithm 3: decrypting /O with the owner
// password's key chain recovers the padded user password.
func userPasswordFromOwner(ownerPassword, ownerValue []byte, revision, keyLen int) []byte {
	sum := md5.Sum(padPassword(ownerPassword))
	key := sum[:]
	if revision >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key)
			key = sum[:]
		}
		key = key[:keyLen]
	} else {
		key = key[:5]
	}

	out := make([]byte, 32)
	copy(out, ownerValue)
	if revision >= 3 {
		for i := 19; i >= 0; i-- {
			rc4Apply(xorKey(key, byte(i)), out)
		}
	} else {
		rc4Apply(key, out)
	}
	return out
}

// ComputeUserValue computes the /U entry for a derived file key
// (Algorithms 4 and 5). Revision 2 RC4-encrypts the padding string;
// revision 3 and later hash the padding with the file ID, encrypt through
// 20 XOR-varied RC4 passes and pad the 16-byte result to 32.
func ComputeUserValue(fileKey, fileID []byte, revision int) []byte {
	if revision == 2 {
		out := make([]byte, 32)
		copy(out, passwordPad)
		rc4Apply(fileKey, out)
		return out
	}

	h := md5.New()
	h.Write(passwordPad)
	h.Write(fileID)
	digest := h.Sum(nil)

	rc4Apply(fileKey, digest)
	for i := 1; i <= 19; i++ {
		rc4Apply(xorKey(fileKey, byte(i)), digest)
	}

	out := make([]byte, 32)
	copy(out, digest)
	return out
}

// HardenedHash computes the revision 6 password hash (Algorithm 2.B): an
// initial SHA-256 over password, salt and the optional user key, then
// rounds of AES-128-CBC over 64 repetitions of (password, hash, user key)
// with the digest function reselected each round. At least 64 rounds run;
// the loop ends once the last encrypted byte is at most round-32, which
// bounds the count at 288 rounds. Revision 5 stops at the initial hash.
// The result is always 32 bytes.
func HardenedHash(password, salt, userKey []byte, revision int) []byte {
	if len(password) > 127 {
		password = password[:127]
	}

	h := sha256.New()
	h.Write(password)
	h.Write(salt)
	h.Write(userKey)
	k := h.Sum(nil)

	if revision < 6 {
		return k
	}

	unit := make([]byte, 0, len(password)+64+len(userKey))
	unit = append(unit, password...)
	unit = append(unit, k...)
	unit = append(unit, userKey...)

	e := []byte{0}
	for round := 0; round < 64 || int(e[len(e)-1]) > round-32; round++ {
		unit = unit[:len(password)]
		unit = append(unit, k...)
		unit = append(unit, userKey...)
		k1 := bytes.Repeat(unit, 64)

		block, _ := aes.NewCipher(k[:16])
		e = make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)

		sum := 0
		for _, b := range e[:16] {
			sum += int(b)
		}
		switch sum % 3 {
		case 0:
			d := sha256.Sum256(e)
			k = d[:]
		case 1:
			d := sha512.Sum384(e)
			k = d[:]
		case 2:
			d := sha512.Sum512(e)
			k = d[:]
		}
	}

	return k[:32]
}

// rc4Apply XORs data in place with the RC4 keystream for key.
func rc4Apply(key, data []byte) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return
	}
	c.XORKeyStream(data, data)
}

// xorKey returns key with every byte XORed with x.
func xorKey(key []byte, x byte) []byte {
	out := make([]byte, len(key))
	for i, b := range key {
		out[i] = b ^ x
	}
	return out
}

// aesCBCNoPadDecrypt decrypts whole blocks with an all-zero IV, as the
// /UE and /OE unwrap requires.
func aesCBCNoPadDecrypt(key, data []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil || len(data)%aes.BlockSize != 0 {
		return nil
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, data)
	return out
}

// aesCBCNoPadEncrypt is the matching zero-IV whole-block encryptor, used
// when wrapping a file key into /UE or /OE.
func aesCBCNoPadEncrypt(key, data []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil || len(data)%aes.BlockSize != 0 {
		return nil
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, data)
	return out
}
