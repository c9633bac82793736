/*

Pitcache is a content-addressable disk cache.  Callers store byte
streams under a key; identical content is stored once, in a file named
after its digest, and the key is recorded in an append-only index that
points at the digest.

Vocabulary:

- root: the cache directory; everything lives below it
- integrity: algorithm-tagged digest of some content, e.g. "sha512-...";
  the only address content has
- content path: root/content-v2/<algo>/<2 hex>/<2 hex>/<rest of hex>;
  computed from an integrity, never stored
- key: caller-chosen name; any string at all
- bucket: append-only index file holding entries for every key whose
  sha256 shares its path; root/index-v5/<2 hex>/<2 hex>/<rest of hex>
- entry: one line in a bucket mapping a key to an integrity plus
  optional metadata; the last valid line for a key wins
- tombstone: an entry with a null integrity; how keys are deleted
- mirror: another cache root that receives hard links (or copies) of
  content and copies of index entries on put
- memo: in-process copy of recently used entries and content

Nothing is ever locked.  Content files appear atomically and are never
modified; index lines are appended with a single write each, and
readers skip lines that are torn or fail their hash.

*/

package pitcache
