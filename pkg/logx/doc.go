// Package logx is pricewatch's structured logging layer on top of zerolog.
//
// Console output stays human readable (short timestamp, file:line caller),
// the optional file sink writes JSON lines, and the optional Telegram sink
// forwards WARN and above to an operator chat under a rate limit.
package logx
