// Package markup assembles bibliographic records from a streaming markup parser.
//
// Decode pulls tokens from encoding/xml and pushes them to a Handler as
// start, end and text events. The Assembler is the Handler that turns those
// events into core.Record values, one per unit element, applying the
// field-completion policy when a unit closes. Other handlers, such as the
// batch manager, decorate the Assembler rather than extend it.
//
// Structural problems in the input (field tags outside a unit, units that
// never close, units without content or identifier) are logged and counted,
// never returned as errors.
package markup
