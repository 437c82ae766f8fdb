// Copyright 2024-2025
// SPDX-License-Identifier: Apache-2.0
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

package market

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSecurity = errors.New("invalid security code")
)

// Exchange identifies the venue portion of a security id
type Exchange string

const (
	Shenzhen Exchange = "XSHE"
	Shanghai Exchange = "XSHG"
	Beijing  Exchange = "BJ"
)

// Class partitions securities by the trading rules that apply to them
type Class int

const (
	ClassStock Class = iota
	ClassStar
	ClassConvertibleBond
	ClassFund
	ClassBeijing
	ClassIndex
)

// Security is a parsed `<code>.<exchange>` identifier. The zero value is not
// valid; construct through ParseSecurity.
type Security struct {
	Code     string
	Exchange Exchange
}

// ParseSecurity parses identifiers of the form `000001.XSHE`. The `.BSE`
// suffix is accepted as an alias of `.BJ`.
func ParseSecurity(sid string) (Security, error) {
	parts := strings.Split(sid, ".")
	if len(parts) != 2 || parts[0] == "" {
		return Security{}, fmt.Errorf("%w: %q", ErrInvalidSecurity, sid)
	}

	var exch Exchange
	switch strings.ToUpper(parts[1]) {
	case "XSHE":
		exch = Shenzhen
	case "XSHG":
		exch = Shanghai
	case "BJ", "BSE":
		exch = Beijing
	default:
		return Security{}, fmt.Errorf("%w: unknown exchange in %q", ErrInvalidSecurity, sid)
	}

	return Security{Code: parts[0], Exchange: exch}, nil
}

// MustParseSecurity is ParseSecurity that panics on malformed input. Use only
// with literals.
func MustParseSecurity(sid string) Security {
	s, err := ParseSecurity(sid)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Security) String() string {
	return s.Code + "." + string(s.Exchange)
}

// Class infers the instrument class from the code prefix
func (s Security) Class() Class {
	if s.Exchange == Beijing {
		return ClassBeijing
	}

	switch {
	case strings.HasPrefix(s.Code, "688"):
		return ClassStar
	case s.Exchange == Shanghai && strings.HasPrefix(s.Code, "11"),
		s.Exchange == Shenzhen && strings.HasPrefix(s.Code, "12"):
		return ClassConvertibleBond
	case s.Exchange == Shanghai && (strings.HasPrefix(s.Code, "51") ||
		strings.HasPrefix(s.Code, "56") || strings.HasPrefix(s.Code, "58")):
		return ClassFund
	case s.Exchange == Shenzhen && (strings.HasPrefix(s.Code, "15") ||
		strings.HasPrefix(s.Code, "16") || strings.HasPrefix(s.Code, "18")):
		return ClassFund
	case s.Exchange == Shanghai && strings.HasPrefix(s.Code, "000"),
		s.Exchange == Shenzhen && strings.HasPrefix(s.Code, "399"):
		return ClassIndex
	}

	return ClassStock
}

// IsFund reports whether the security trades under fund rules (ETF, LOF,
// money-market fund); funds are exempt from stamp tax and dividend tax.
func (s Security) IsFund() bool {
	return s.Class() == ClassFund
}
