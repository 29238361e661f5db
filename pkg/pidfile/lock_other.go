// Copyright 2025 walteh LLC
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

//go:build !unix

package pidfile

import (
	"os"

	"gitlab.com/tozd/go/errors"
)

var errWouldBlock = errors.Base("lock would block")

var errUnsupported = errors.Base("advisory pid file locking is not supported on this platform")

func tryLock(f *os.File) error {
	return errUnsupported
}

func unlock(f *os.File) error {
	return errUnsupported
}
