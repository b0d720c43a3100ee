package security

import "github.com/alexedwards/argon2id"

// codeParams are lighter than argon2id.DefaultParams: codes live for minutes
// and are checked on every verification request.
var codeParams = &argon2id.Params{
	Memory:      16 * 1024,
	Iterations:  1,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

func HashCode(code string) (string, error) {
	return argon2id.CreateHash(code, codeParams)
}

func CheckCode(hash, code string) bool {
	ok, err := argon2id.ComparePasswordAndHash(code, hash)
	return err == nil && ok
}
