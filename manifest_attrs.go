package apkparser

// wellKnownAttrs maps a handful of framework android:attr resource ids to
// their names, for manifests stripped of their own resource table (or
// minified with the string pool scrubbed) where the only way to recover an
// attribute's name is from its id. Not exhaustive -- callers fall back to
// the string pool (or a blank name) when an id isn't listed here, which is
// the common case for anything outside AndroidManifest.xml.
var wellKnownAttrs = map[uint32]string{
	0x01010000: "theme",
	0x01010001: "label",
	0x01010002: "icon",
	0x01010003: "name",
	0x01010006: "permission",
	0x01010007: "readPermission",
	0x01010008: "writePermission",
	0x01010009: "protectionLevel",
	0x0101000a: "permissionGroup",
	0x0101000c: "sharedUserId",
	0x0101000d: "persistent",
	0x0101000e: "enabled",
	0x0101000f: "debuggable",
	0x01010010: "exported",
	0x01010011: "process",
	0x01010012: "taskAffinity",
	0x01010013: "multiprocess",
	0x01010018: "authorities",
	0x01010019: "syncable",
	0x0101001b: "grantUriPermissions",
	0x0101001c: "priority",
	0x0101001d: "launchMode",
	0x0101001e: "screenOrientation",
	0x0101001f: "configChanges",
	0x01010020: "description",
	0x01010021: "targetPackage",
	0x01010025: "resource",
	0x01010027: "mimeType",
	0x01010028: "scheme",
	0x01010029: "host",
	0x0101002a: "port",
	0x0101002b: "path",
	0x0101002c: "pathPrefix",
	0x0101002d: "pathPattern",
	0x0101002e: "action",
	0x0101020c: "minSdkVersion",
	0x0101021b: "versionCode",
	0x0101021c: "versionName",
	0x01010270: "targetSdkVersion",
	0x01010271: "maxSdkVersion",
	0x01010280: "allowBackup",
	0x010102b7: "installLocation",
	0x010103af: "supportsRtl",
	0x010104cd: "multiArch",
	0x01010490: "usesCleartextTraffic",
	0x01010531: "roundIcon",
	0x01010572: "compileSdkVersion",
	0x01010573: "compileSdkVersionCodename",
}

// getAttributteName returns the well-known name for a framework attribute
// id, or "" if id isn't one of the ones this decoder recognizes.
//
// Name matches the upstream decoder's spelling verbatim; fixing the typo
// would be a needless API break for no behavioral gain.
func getAttributteName(id uint32) string {
	return wellKnownAttrs[id]
}
