// pictures.go

// Copyright (C) 2018  Steve Merrony

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.

// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package tello

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const chunksPerPiece = 8

// picture is a JPEG being downloaded from the Tello in pieces of up to 8 chunks
type picture struct {
	fileID    uint16
	size      int
	accumSize int
	pieces    map[uint32]map[uint32][]byte
	acked     map[uint32]bool
}

// SetPictureDir sets the directory downloaded pictures are written to.
// Pictures are discarded while it is empty.
func (tello *Tello) SetPictureDir(dir string) {
	tello.picMu.Lock()
	tello.picDir = dir
	tello.picMu.Unlock()
}

// PicturesSaved returns the number of pictures written since connecting.
func (tello *Tello) PicturesSaved() int {
	tello.picMu.Lock()
	defer tello.picMu.Unlock()
	return tello.picsSaved
}

func (tello *Tello) receiveFileSize(pl []byte) {
	if len(pl) < 7 {
		return
	}
	tello.picMu.Lock()
	tello.pic = picture{
		size:   int(binary.LittleEndian.Uint32(pl[1:5])),
		fileID: binary.LittleEndian.Uint16(pl[5:7]),
		pieces: make(map[uint32]map[uint32][]byte),
		acked:  make(map[uint32]bool),
	}
	tello.picMu.Unlock()
	tello.sendFileSize()
}

func (tello *Tello) receiveFileData(pl []byte) {
	if len(pl) < 12 {
		return
	}
	fID := binary.LittleEndian.Uint16(pl[0:2])
	pieceNum := binary.LittleEndian.Uint32(pl[2:6])
	chunkNum := binary.LittleEndian.Uint32(pl[6:10])
	chunkLen := int(binary.LittleEndian.Uint16(pl[10:12]))
	if len(pl) < 12+chunkLen {
		return
	}

	tello.picMu.Lock()
	pic := &tello.pic
	if pic.pieces == nil || pic.fileID != fID {
		tello.picMu.Unlock()
		return
	}
	piece, ok := pic.pieces[pieceNum]
	if !ok {
		piece = make(map[uint32][]byte)
		pic.pieces[pieceNum] = piece
	}
	if _, dup := piece[chunkNum]; !dup {
		piece[chunkNum] = append([]byte(nil), pl[12:12+chunkLen]...)
		pic.accumSize += chunkLen
	}
	complete := pic.accumSize >= pic.size
	ackPiece := !pic.acked[pieceNum] && (len(piece) == chunksPerPiece || complete)
	if ackPiece {
		pic.acked[pieceNum] = true
	}
	var jpeg []byte
	if complete {
		jpeg = pic.reassemble()
		tello.pic = picture{}
	}
	tello.picMu.Unlock()

	if ackPiece {
		tello.sendFileAckPiece(0, fID, pieceNum)
	}
	if complete {
		tello.sendFileAckPiece(1, fID, pieceNum)
		tello.sendFileDone(fID, len(jpeg))
		tello.savePicture(jpeg)
	}
}

// reassemble concatenates the pieces and their chunks in order
func (pic *picture) reassemble() []byte {
	pieceNums := make([]uint32, 0, len(pic.pieces))
	for n := range pic.pieces {
		pieceNums = append(pieceNums, n)
	}
	sort.Slice(pieceNums, func(i, j int) bool { return pieceNums[i] < pieceNums[j] })
	out := make([]byte, 0, pic.accumSize)
	for _, pn := range pieceNums {
		chunks := pic.pieces[pn]
		chunkNums := make([]uint32, 0, len(chunks))
		for n := range chunks {
			chunkNums = append(chunkNums, n)
		}
		sort.Slice(chunkNums, func(i, j int) bool { return chunkNums[i] < chunkNums[j] })
		for _, cn := range chunkNums {
			out = append(out, chunks[cn]...)
		}
	}
	return out
}

func (tello *Tello) savePicture(jpeg []byte) {
	tello.picMu.Lock()
	dir := tello.picDir
	tello.picMu.Unlock()
	if dir == "" {
		tello.log().WithField("bytes", len(jpeg)).Debug("Picture received, no directory set")
		return
	}
	filename := filepath.Join(dir, fmt.Sprintf("tello_%s.jpg", uuid.New()))
	if err := os.WriteFile(filename, jpeg, 0644); err != nil {
		tello.log().WithError(err).Warn("Could not save picture")
		return
	}
	tello.picMu.Lock()
	tello.picsSaved++
	tello.picMu.Unlock()
	tello.log().WithFields(logrus.Fields{"file": filename, "bytes": len(jpeg)}).Info("Picture saved")
}

func (tello *Tello) sendFileSize() {
	tello.ctrlMu.Lock()
	defer tello.ctrlMu.Unlock()
	if err := tello.send(newPacket(ptData1, msgFileSize, 0, 1)); err != nil {
		tello.log().WithError(err).Debug("Could not acknowledge file size")
	}
}

func (tello *Tello) sendFileAckPiece(done byte, fID uint16, pieceNum uint32) {
	tello.ctrlMu.Lock()
	defer tello.ctrlMu.Unlock()
	pkt := newPacket(ptData1, msgFileData, 0, 7)
	pkt.payload[0] = done
	binary.LittleEndian.PutUint16(pkt.payload[1:], fID)
	binary.LittleEndian.PutUint32(pkt.payload[3:], pieceNum)
	if err := tello.send(pkt); err != nil {
		tello.log().WithError(err).Debug("Could not acknowledge file piece")
	}
}

func (tello *Tello) sendFileDone(fID uint16, size int) {
	tello.ctrlMu.Lock()
	defer tello.ctrlMu.Unlock()
	pkt := newPacket(ptGet, msgFileDone, 0, 6)
	binary.LittleEndian.PutUint16(pkt.payload[0:], fID)
	binary.LittleEndian.PutUint32(pkt.payload[2:], uint32(size))
	if err := tello.send(pkt); err != nil {
		tello.log().WithError(err).Debug("Could not complete file transfer")
	}
}
