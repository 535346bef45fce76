// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package afdconfig

// Options is the shared options/capabilities bitset (§6.2). The same
// numeric space is used both for a ConfigEntry's connection options
// and for a row's log_capabilities.
type Options uint32

const (
	OptCompress         Options = 0x0001
	OptMinusY           Options = 0x0002
	OptDontUseFullPath  Options = 0x0004
	OptEnableTLS        Options = 0x0008
	OptSystemLog        Options = 0x0010
	OptReceiveLog       Options = 0x0020
	OptTransferLog      Options = 0x0040
	OptTransferDebugLog Options = 0x0080
	OptInputLog         Options = 0x0100
	OptProductionLog    Options = 0x0200
	OptOutputLog        Options = 0x0400
	OptDeleteLog        Options = 0x0800
	OptJobData          Options = 0x1000
	OptCompression1     Options = 0x2000
	OptEventLog         Options = 0x4000
	OptDistributionLog  Options = 0x8000
	OptConfirmationLog  Options = 0x10000
	OptNoStrictSSHHostkey Options = 0x800000
)

// Has reports whether all bits of mask are set.
func (o Options) Has(mask Options) bool { return o&mask == mask }

// logKindOptions maps each requestable log stream to the bit that
// enables it, in the order the LOG command (§4.G) should aggregate
// them.
var logKindOptions = []struct {
	kind LogKind
	bit  Options
}{
	{LogKindSystem, OptSystemLog},
	{LogKindReceive, OptReceiveLog},
	{LogKindTransfer, OptTransferLog},
	{LogKindTransferDebug, OptTransferDebugLog},
	{LogKindInput, OptInputLog},
	{LogKindProduction, OptProductionLog},
	{LogKindOutput, OptOutputLog},
	{LogKindDelete, OptDeleteLog},
	{LogKindEvent, OptEventLog},
	{LogKindDistribution, OptDistributionLog},
	{LogKindConfirmation, OptConfirmationLog},
}

// RequestedLogKinds returns the log kinds enabled by this options
// bitset, in a stable order suitable for building the aggregated LOG
// command line.
func (o Options) RequestedLogKinds() []LogKind {
	var kinds []LogKind
	for _, e := range logKindOptions {
		if o.Has(e.bit) {
			kinds = append(kinds, e.kind)
		}
	}
	return kinds
}
