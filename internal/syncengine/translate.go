package syncengine

import (
	"fmt"

	"github.com/quasiyoke/rammingen/internal/cryptoengine"
	"github.com/quasiyoke/rammingen/internal/pathutil"
)

// encryptRelative encrypts each native segment of a path relative to a
// mount root independently and returns the resulting
// EncryptedArchivePath string, rooted under the mount's ArchivePath.
func encryptRelative(crypto *cryptoengine.Engine, mount MountPoint, local pathutil.SanitizedLocalPath) (string, error) {
	segments, err := local.RelativeTo(mount.LocalPath)
	if err != nil {
		return "", fmt.Errorf("syncengine: %s is not under mount root %s: %w", local.String(), mount.LocalPath.String(), err)
	}

	archive := mount.ArchivePath

	for _, seg := range segments {
		enc, err := crypto.EncryptSegment(seg)
		if err != nil {
			return "", fmt.Errorf("syncengine: encrypting path segment %q: %w", seg, err)
		}

		archive, err = archive.Join(enc)
		if err != nil {
			return "", fmt.Errorf("syncengine: joining encrypted segment: %w", err)
		}
	}

	return archive.String(), nil
}

// decryptToLocal reverses encryptRelative: given an EncryptedArchivePath
// string rooted under mount's ArchivePath, decrypts each segment below
// the mount root and joins them onto the mount's local path.
func decryptToLocal(crypto *cryptoengine.Engine, mount MountPoint, encryptedArchivePath string) (pathutil.SanitizedLocalPath, error) {
	ap, err := pathutil.ParseArchivePath(encryptedArchivePath)
	if err != nil {
		return pathutil.SanitizedLocalPath{}, fmt.Errorf("syncengine: parsing archive path %q: %w", encryptedArchivePath, err)
	}

	rel, err := ap.RelativeTo(mount.ArchivePath)
	if err != nil {
		return pathutil.SanitizedLocalPath{}, fmt.Errorf("syncengine: %q is outside mount archive root %q: %w", encryptedArchivePath, mount.ArchivePath.String(), err)
	}

	local := mount.LocalPath

	for _, encSeg := range rel {
		seg, err := crypto.DecryptSegment(encSeg)
		if err != nil {
			return pathutil.SanitizedLocalPath{}, fmt.Errorf("syncengine: decrypting segment %q: %w", encSeg, err)
		}

		local, err = local.Join(seg)
		if err != nil {
			return pathutil.SanitizedLocalPath{}, fmt.Errorf("syncengine: joining decrypted segment: %w", err)
		}
	}

	return local, nil
}
