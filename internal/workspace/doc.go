// Package workspace binds a feature store to files on disk. A
// workspace directory carries a geostorm.toml manifest naming the
// collections and the GeoJSON file each one loads from and exports to.
package workspace
