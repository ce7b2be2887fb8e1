// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package epoch implements the client side of the epoch key-rotation
// protocol: creating and rotating conversation epochs, wrapping and
// unwrapping epoch keys per member, traversing the one-directional
// chain links between successive epochs, and resolving the key for any
// epoch a member is entitled to read.
//
// A conversation moves through epochs 1, 2, 3, ... — each a fresh
// random keypair. Every rotation wraps the new key for the current
// member set and encrypts the previous key under the new one (the
// chain link). Holding epoch N therefore reaches every epoch back to
// the holder's join point, while a member removed before epoch N
// cannot move forward from the keys it retains.
package epoch
