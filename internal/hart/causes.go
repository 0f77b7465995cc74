// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.

package hart

// Synchronous exception causes (spec.md §4.8).
const (
	CauseInstrAddrMisaligned = 0
	CauseInstrAccessFault    = 1
	CauseIllegalInstruction  = 2
	CauseBreakpoint          = 3
	CauseLoadAddrMisaligned  = 4
	CauseLoadAccessFault     = 5
	CauseStoreAddrMisaligned = 6
	CauseStoreAccessFault    = 7
	CauseEcallFromU          = 8
	CauseEcallFromS          = 9
	CauseEcallFromM          = 11
)

// Interrupt causes (the code stored in mcause's low bits; bit 63 set separately).
const (
	CauseSSI = 1
	CauseMSI = 3
	CauseSTI = 5
	CauseMTI = 7
	CauseSEI = 9
	CauseMEI = 11
)
