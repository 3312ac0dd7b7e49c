// Package fits encodes 16-bit images into FITS containers.
//
// The encoder covers exactly what the acquisition server needs: a single
// primary header-data unit with fixed-format cards, reserved space for
// downstream header additions, and a big-endian 16-bit pixel payload.
// Unsigned pixel values are stored with the conventional BZERO=32768
// offset. Both the header and the payload are padded to the FITS
// record boundary of 2880 bytes.
package fits
