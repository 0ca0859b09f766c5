// Package nestedjar reads jar files, including jars stored inside other
// jars, without extracting them.
//
// A jar packaged with its dependencies keeps them as stored entries, for
// example BOOT-INF/lib/dep.jar, and its own classes below a directory such
// as BOOT-INF/classes/. Both can be opened in place: a stored jar entry is
// read directly from the bytes of the outer file, and a directory entry is
// presented as a jar of the entries below it.
//
// # Quick Start
//
// Open a nested jar and read an entry:
//
//	l, err := nestedjar.NewLoader()
//	if err != nil {
//	    return err
//	}
//	defer l.Close()
//
//	f, err := l.Open("app.jar/!BOOT-INF/lib/dep.jar")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//	data, err := fs.ReadFile(f.FS(), "META-INF/MANIFEST.MF")
//
// # Addressing
//
// Locations use the "nested:" form, a container path followed by "/!" and
// an entry name. Jar URLs wrap a "nested:" or "file:" URL and add "!/" and
// an entry path:
//
//	nested:/srv/app.jar/!BOOT-INF/classes/
//	jar:nested:/srv/app.jar/!BOOT-INF/lib/dep.jar!/com/example/Dep.class
//
// [Loader.OpenNested] streams the raw zip bytes of a nested location and
// [Loader.OpenURL] reads the entry a jar URL names.
//
// # Sharing
//
// Every archive is parsed once per Loader. Files opened from the same
// location share the parsed index and one OS handle, which is released
// when the last of them is closed.
package nestedjar
