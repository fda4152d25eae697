// Package registry holds the canonical Safe contract deployments.
//
// The tables below list the audited, officially-deployed Safe contracts
// by role: proxy factories, mastercopies (singletons), setup-time
// delegatecall targets (initializers), and fallback handlers. A wallet
// whose contracts all resolve here is running known code; anything
// unrecognized is a standing question mark and feeds the risk score.
//
// Keys are lower-cased addresses. The tables are process-wide constants,
// loaded once and never mutated, so concurrent lookups need no locking.
package registry

import "strings"

// Kind selects which canonical table to consult.
type Kind string

const (
	KindProxyFactory    Kind = "proxyFactory"
	KindMastercopy      Kind = "mastercopy"
	KindInitializer     Kind = "initializer"
	KindFallbackHandler Kind = "fallbackHandler"
)

// ZeroAddress is the Ethereum zero address. For fallback handlers its
// presence means "no fallback handler", which is canonical on its own:
// a Safe without a fallback handler has strictly less reachable code
// than one with an unrecognized handler.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// NoFallbackHandler is the canonical name reported for a zero fallback handler.
const NoFallbackHandler = "No Fallback Handler"

var proxyFactories = map[string]string{
	"0x76e2cfc1f5fa8f6a5b3fc4c8f4788f0116861f9b": "Gnosis Safe Proxy Factory 1.1.1",
	"0xa6b71e26c5e0845f74c812102ca7114b6a896ab2": "Gnosis Safe Proxy Factory 1.3.0",
	"0xc22834581ebc8527d974f8a1c97e1bea4ef910bc": "Gnosis Safe Proxy Factory 1.3.0",
	"0x4e1dcf7ad4e460cfd30791ccc4f9c8a4f820ec67": "Safe Proxy Factory 1.4.1",
}

var mastercopies = map[string]string{
	"0x34cfac646f301356faa8b21e94227e3583fe3f5f": "Gnosis Safe 1.1.1",
	"0x6851d6fdfafd08c0295c392436245e5bc78b0185": "Gnosis Safe 1.2.0",
	"0xd9db270c1b5e3bd161e8c8503c55ceabee709552": "Gnosis Safe 1.3.0",
	"0x69f4d1788e39c87893c980c06edf4b7f686e2938": "Gnosis Safe 1.3.0",
	"0x3e5c63644e683549055b9be8653de26e0b4cd36e": "Gnosis Safe L2 1.3.0",
	"0xfb1bffc9d739b8d520daf37df666da4c687191ea": "Gnosis Safe L2 1.3.0",
	"0x41675c099f32341bf84bfc5382af534df5c7461a": "Safe 1.4.1",
	"0x29fcb43b46531bca003ddc8fcb67ffe91900c762": "Safe L2 1.4.1",
}

// initializers are the contracts a Safe may delegatecall into during
// setup(). Anything else executing at creation time can install
// arbitrary owners or state before the first signature is ever checked.
var initializers = map[string]string{
	"0xa238cbeb142c10ef7ad8442c6d1f9e89e07e7761": "MultiSend 1.3.0",
	"0x40a2accbd92bca938b02010e17a5b8929b49130d": "MultiSend Call Only 1.3.0",
	"0x38869bf66a61cf6bdb996a6ae40d5853fd43b526": "MultiSend 1.4.1",
	"0x9641d764fc13c8b624c04430c7356c1c7c8102e2": "MultiSend Call Only 1.4.1",
	"0xbd89a1ce4dde368ffab0ec35506eece0b1ffdc54": "Safe To L2 Setup 1.4.1",
	"0xa65387f16b013cf2af4605ad8aa5ec25a2cba3a2": "Sign Message Lib 1.3.0",
}

var fallbackHandlers = map[string]string{
	"0xd5d82b6addc9027b22dca772aa68d5d74cdbdf44": "Default Callback Handler 1.1.1",
	"0xf48f2b2d2a534e402487b3ee7c18c33aec0fe5e4": "Compatibility Fallback Handler 1.3.0",
	"0x017062a1de2fe6b99be3d9d37841fed19f573804": "Compatibility Fallback Handler 1.3.0",
	"0xfd0732dc9e303f09fcef3a7388ad10a83459ec99": "Compatibility Fallback Handler 1.4.1",
	"0xedcf620325e82e3b9836eaaefdc4283e99dd7562": "Token Callback Handler 1.4.1",
}

var tables = map[Kind]map[string]string{
	KindProxyFactory:    proxyFactories,
	KindMastercopy:      mastercopies,
	KindInitializer:     initializers,
	KindFallbackHandler: fallbackHandlers,
}

// Lookup returns the canonical display name for an address of the given
// kind. Comparison is case-insensitive. For KindFallbackHandler the zero
// (or empty) address is itself canonical and resolves to NoFallbackHandler.
func Lookup(kind Kind, address string) (string, bool) {
	addr := strings.ToLower(strings.TrimSpace(address))
	if kind == KindFallbackHandler && IsZero(addr) {
		return NoFallbackHandler, true
	}
	table, ok := tables[kind]
	if !ok {
		return "", false
	}
	name, ok := table[addr]
	return name, ok
}

// IsZero reports whether an address is empty or the zero address.
func IsZero(address string) bool {
	addr := strings.ToLower(strings.TrimSpace(address))
	return addr == "" || addr == ZeroAddress || addr == "0x0" || addr == "0x"
}
