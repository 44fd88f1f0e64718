// Package tiles models the untyped tables of legacy 3D tile payloads, and the
// type tokens shared by the decoding, schema and property table packages.
//
// A legacy payload (pnts, b3dm, i3dm or cmpt) carries a feature table and a
// batch table. Each table is a JSON header mapping property names either to
// inline values or to binary body references, plus a binary body. Table
// represents such a header together with its body.
//
// Two families of type tokens are defined. The legacy tokens (BYTE,
// UNSIGNED_BYTE, ..., DOUBLE and SCALAR, VEC2, VEC3, VEC4) appear in legacy
// tables. The canonical tokens (INT8, ..., FLOAT64 and SCALAR ... ENUM) are
// used by structured metadata. Each legacy token maps to exactly one canonical
// token.
//
// The sub-packages build on this model:
//
//     accessor   typed lazy sequences over binary bodies
//     attrib     oct, color and quantization decoders
//     vmath      vector, quaternion and matrix algebra
//     schema     structured metadata schemas and type inference
//     proptable  binary property tables and property attributes
//     metadata   glTF metadata extensions and the schema merger
//     tile       legacy payload headers
//     migrate    migration of legacy payloads to glTF documents
package tiles
