// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package source

import (
	"crypto/sha256"
	"io"

	"github.com/tombee/vstack/pkg/errors"
)

// ChecksumSize is the width in bytes of a document checksum.
const ChecksumSize = sha256.Size

// Checksum returns the SHA-256 digest of data.
func Checksum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// ChecksumReader digests everything readable from r.
func ChecksumReader(r io.Reader) ([]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return nil, errors.Wrap(err, "computing checksum")
	}
	return h.Sum(nil), nil
}
