// Copyright 2025 Sandlot Authors
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

package bundler

import (
	"fmt"
	"strings"
)

// stubSource emits the module body for a shared module. The registry is
// reached through the global object because the emitted code executes
// in the host's module loader, where no lexical closure over the
// registry is possible. Each pre-introspected export name becomes a
// static `export const`; a statically-analyzed bundler would otherwise
// reject named imports against a runtime-introspected module.
func stubSource(registryKey, moduleID string, exportNames []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `const __mod__ = (function () {
  const registry = globalThis[%q];
  if (!registry) {
    throw new Error("shared module registry not found: " + %q);
  }
  return registry.get(%q);
})();
`, registryKey, registryKey, moduleID)

	// The default export falls back to the module object itself so both
	// `export default` styles of host modules work.
	b.WriteString("export default __mod__.default ?? __mod__;\n")

	for _, name := range exportNames {
		fmt.Fprintf(&b, "export const %s = __mod__.%s;\n", name, name)
	}
	return b.String()
}
